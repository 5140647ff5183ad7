/*
Package metrics provides Prometheus metrics collection and exposition for keg.

The metrics package defines and registers keg's metrics using the
Prometheus client library: object-store presence counts, fetch-drain
throughput, remote request latency, and fetch-phase duration. Metrics are
exposed via an HTTP endpoint for scraping by Prometheus servers.

# Metrics Catalog

Object store:

keg_objects_present_total{kind}:
  - Type: Gauge
  - Description: objects present in the local store by kind (config, data,
    index, patch, patch_index, config_items)

keg_fragments_quarantined_total:
  - Type: Gauge
  - Description: encrypted fragments awaiting an Armadillo key

Fetch drains:

keg_keys_fetched_total{drain}:
  - Type: Counter
  - Description: keys fetched from a remote CDN by drain

keg_keys_skipped_total{drain}, keg_keys_quarantined_total{drain},
keg_keys_failed_total{drain,reason}:
  - Type: Counter
  - Description: keys skipped (already present), quarantined, or failed

keg_drain_duration_seconds{drain}, keg_drain_queue_depth{drain}:
  - Type: Histogram / Gauge
  - Description: time to service a drain, and its queue depth at the last
    drain

Remote:

keg_remote_requests_total{remote,protocol,status},
keg_remote_request_duration_seconds{remote,protocol},
keg_bytes_downloaded_total{kind}:
  - Type: Counter / Histogram
  - Description: requests issued to a remote, their latency, and bytes
    pulled by object kind

Fetcher phases:

keg_fetch_phase_duration_seconds{phase}, keg_builds_fetched_total,
keg_builds_failed_total:
  - Type: Histogram / Counter
  - Description: time spent in fetch_config/fetch_metadata/fetch_data,
    and overall build fetch outcomes

Verification:

keg_integrity_failures_total{kind}:
  - Type: Counter
  - Description: objects that failed integrity verification by kind

# Usage

	timer := metrics.NewTimer()
	// ... fetch_metadata phase ...
	timer.ObserveDurationVec(metrics.FetchPhaseDuration, "fetch_metadata")

	metrics.KeysFetchedTotal.WithLabelValues("archive").Inc()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
