package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/keg/pkg/keg"
	"github.com/cuemby/keg/pkg/log"
	"github.com/cuemby/keg/pkg/remote"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [remote...]",
	Short: "Fetch build content from one or more remotes",
	Long: `fetch resolves each remote's versions and CDN server list, then
pulls every object a version's build depends on into the local object
store. With no arguments it fetches every remote marked default-fetch in
keg.conf.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openRepo(cmd)
		if err != nil {
			return err
		}
		defer k.Close()

		urls := args
		if len(urls) == 0 {
			urls = k.Config.DefaultFetchRemotes()
		}
		if len(urls) == 0 {
			return fmt.Errorf("no remotes to fetch: pass one or more, or mark one default-fetch in keg.conf")
		}

		ctx := cmd.Context()
		ok := false
		for _, url := range urls {
			if err := fetchOneRemote(ctx, k, url); err != nil {
				log.WithRemote(url).Error().Err(err).Msg("fetch failed")
				continue
			}
			ok = true
		}
		if !ok {
			return fmt.Errorf("fetch failed for every remote")
		}
		return nil
	},
}

func fetchOneRemote(ctx context.Context, k *keg.Keg, url string) error {
	session, err := k.OpenRemote(url)
	if err != nil {
		return err
	}

	versions, err := session.Versions(ctx)
	if err != nil {
		return err
	}
	cdns, err := session.CDNs(ctx)
	if err != nil {
		return err
	}
	base, err := session.SelectServer(cdns)
	if err != nil {
		return err
	}

	remoteLog := log.WithRemote(url)
	for _, v := range versions {
		if err := fetchOneVersion(ctx, k, session, v, base); err != nil {
			remoteLog.Warn().Err(err).Str("build", v.BuildConfig).Msg("skipping build")
		}
	}
	return nil
}

func fetchOneVersion(ctx context.Context, k *keg.Keg, session *keg.RemoteSession, v remote.VersionRecord, base string) error {
	f := session.NewFetcher(v, base, nil)
	verify := k.Config.VerifyIntegrity

	if err := f.FetchConfig(ctx, verify); err != nil {
		return fmt.Errorf("fetching config: %w", err)
	}
	if err := f.FetchMetadata(ctx, verify); err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}
	if err := f.FetchData(ctx, verify); err != nil {
		return fmt.Errorf("fetching data: %w", err)
	}
	fmt.Printf("Fetched build %s (%s)\n", v.VersionsName, v.BuildConfig)
	return nil
}
