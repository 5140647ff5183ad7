package remote

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/psv"
)

// DefaultRibbitPort is the TCP port a Ribbit server listens on when the
// remote URL doesn't specify one.
const DefaultRibbitPort = 1119

// RibbitResponse is a parsed Ribbit payload: the signed MIME-multipart
// envelope the server returns, split into its checksummed content and
// detached signature.
type RibbitResponse struct {
	Content   []byte
	Signature []byte
	Checksum  string
}

// RibbitClient is the raw Ribbit TCP transport: one line out, the whole
// connection read back in.
type RibbitClient struct {
	hostname string
	port     int
	verify   bool
}

// NewRibbitClient builds a client for hostname:port. port defaults to
// DefaultRibbitPort when 0.
func NewRibbitClient(hostname string, port int, verify bool) *RibbitClient {
	if port == 0 {
		port = DefaultRibbitPort
	}
	return &RibbitClient{hostname: hostname, port: port, verify: verify}
}

// Get sends path as a one-line request, reads until the connection closes,
// and parses the resulting MIME-multipart response.
func (c *RibbitClient) Get(path string) (*RibbitResponse, error) {
	addr := net.JoinHostPort(c.hostname, strconv.Itoa(c.port))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, &kegerr.NetworkError{URL: "ribbit://" + addr, Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(path + "\n")); err != nil {
		return nil, &kegerr.NetworkError{URL: "ribbit://" + addr, Err: err}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, &kegerr.NetworkError{URL: "ribbit://" + addr, Err: err}
	}

	if len(data) == 0 {
		return nil, &kegerr.NoDataError{Path: path}
	}
	if !bytes.HasSuffix(data, []byte("\r\n")) {
		return nil, &kegerr.RibbitError{Reason: "unterminated data"}
	}

	return parseRibbitResponse(data, c.verify)
}

// parseRibbitResponse splits a raw Ribbit payload into its MIME header
// block, multipart body, and trailing epilogue, verifying the epilogue's
// Checksum header against a SHA-256 of everything preceding it. The
// standard library has no single parser for a raw MIME message plus
// epilogue, so this composes net/textproto (header parsing), mime
// (boundary extraction), and mime/multipart (payload splitting) with a
// manual scan for the closing boundary delimiter.
func parseRibbitResponse(data []byte, verify bool) (*RibbitResponse, error) {
	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		return nil, &kegerr.RibbitError{Reason: "missing MIME header block"}
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(data[:headerEnd+2])))
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, &kegerr.RibbitError{Reason: "malformed MIME header: " + err.Error()}
	}

	_, params, err := mime.ParseMediaType(hdr.Get("Content-Type"))
	if err != nil {
		return nil, &kegerr.RibbitError{Reason: "malformed Content-Type: " + err.Error()}
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, &kegerr.RibbitError{Reason: "missing multipart boundary"}
	}

	closeMarker := []byte("--" + boundary + "--")
	closeIdx := bytes.LastIndex(data, closeMarker)
	if closeIdx == -1 {
		return nil, &kegerr.RibbitError{Reason: "missing closing multipart boundary"}
	}

	afterClose := closeIdx + len(closeMarker)
	for afterClose < len(data) && (data[afterClose] == '\r' || data[afterClose] == '\n') {
		afterClose++
	}
	epilogue := data[afterClose:]
	contentBytes := data[:len(data)-len(epilogue)]

	checksum, err := parseChecksum(epilogue)
	if err != nil {
		return nil, err
	}

	if verify {
		sum := sha256.Sum256(contentBytes)
		actual := hex.EncodeToString(sum[:])
		if !strings.EqualFold(actual, checksum) {
			return nil, &kegerr.IntegrityVerificationError{
				ObjectName:     "ribbit response",
				ExpectedDigest: checksum,
				ActualDigest:   actual,
			}
		}
	}

	body := data[headerEnd+4 : closeIdx+len(closeMarker)]
	mr := multipart.NewReader(bytes.NewReader(body), boundary)

	var parts [][]byte
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &kegerr.RibbitError{Reason: "malformed multipart body: " + err.Error()}
		}
		payload, err := io.ReadAll(p)
		if err != nil {
			return nil, &kegerr.RibbitError{Reason: "reading multipart payload: " + err.Error()}
		}
		parts = append(parts, payload)
	}
	if len(parts) == 0 {
		return nil, &kegerr.RibbitError{Reason: "multipart body has no parts"}
	}

	resp := &RibbitResponse{Content: parts[0], Checksum: checksum}
	if len(parts) > 1 {
		resp.Signature = parts[1]
	}
	return resp, nil
}

// parseChecksum extracts the "Checksum:" header's value from the MIME
// epilogue.
func parseChecksum(epilogue []byte) (string, error) {
	for _, line := range bytes.Split(epilogue, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if rest, ok := bytes.CutPrefix(line, []byte("Checksum:")); ok {
			return strings.TrimSpace(string(rest)), nil
		}
	}
	return "", &kegerr.RibbitError{Reason: "missing Checksum header in epilogue"}
}

// RibbitRemote is the Ribbit-protocol remote client, addressed by a
// ribbit://host[:port]/product URL.
type RibbitRemote struct {
	client  *RibbitClient
	product string
}

// NewRibbitRemote parses a ribbit:// URL and builds a remote for its
// product.
func NewRibbitRemote(rawURL string, verify bool) (*RibbitRemote, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ribbit url %q: %w", rawURL, err)
	}
	if u.Scheme != "ribbit" {
		return nil, fmt.Errorf("invalid ribbit url %q: must start with ribbit://", rawURL)
	}

	port := DefaultRibbitPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ribbit port in %q: %w", rawURL, err)
		}
		port = n
	}

	return &RibbitRemote{
		client:  NewRibbitClient(u.Hostname(), port, verify),
		product: strings.TrimPrefix(u.Path, "/"),
	}, nil
}

func (r *RibbitRemote) path(name string) string {
	return fmt.Sprintf("v1/products/%s/%s", r.product, name)
}

// RequestPath is the exported form of the path a given PSV name resolves
// to, for callers (the cacheable wrapper) that need to key a cache entry
// by it.
func (r *RibbitRemote) RequestPath(name string) string { return r.path(name) }

// Hostname returns the server hostname this remote connects to.
func (r *RibbitRemote) Hostname() string { return r.client.hostname }

// GetPSV fetches and parses the named PSV document over Ribbit.
func (r *RibbitRemote) GetPSV(name string) (*psv.File, *RibbitResponse, error) {
	resp, err := r.client.Get(r.path(name))
	if err != nil {
		return nil, nil, err
	}
	file, err := psv.Parse(bytes.NewReader(resp.Content))
	if err != nil {
		return nil, nil, err
	}
	return file, resp, nil
}

// GetCDNs fetches and parses the "cdns" PSV document into typed records.
func (r *RibbitRemote) GetCDNs() ([]CDNRecord, *RibbitResponse, error) {
	file, resp, err := r.GetPSV("cdns")
	if err != nil {
		return nil, nil, err
	}
	return CDNRecordsFromPSV(file), resp, nil
}

// GetVersions fetches and parses the "versions" PSV document into typed
// records.
func (r *RibbitRemote) GetVersions() ([]VersionRecord, *RibbitResponse, error) {
	file, resp, err := r.GetPSV("versions")
	if err != nil {
		return nil, nil, err
	}
	return VersionRecordsFromPSV(file), resp, nil
}

// GetBGDL fetches and parses the "bgdl" PSV document into typed records.
func (r *RibbitRemote) GetBGDL() ([]VersionRecord, *RibbitResponse, error) {
	file, resp, err := r.GetPSV("bgdl")
	if err != nil {
		return nil, nil, err
	}
	return VersionRecordsFromPSV(file), resp, nil
}

// GetBlobs fetches and parses the "blobs" PSV document into typed records.
// Unlike HTTP, Ribbit has no singular JSON get_blob(name) endpoint.
func (r *RibbitRemote) GetBlobs() ([]BlobRecord, *RibbitResponse, error) {
	file, resp, err := r.GetPSV("blobs")
	if err != nil {
		return nil, nil, err
	}
	return BlobRecordsFromPSV(file), resp, nil
}
