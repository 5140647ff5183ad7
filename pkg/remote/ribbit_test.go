package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ribbitBoundary = "boundary123"

func buildRibbitMessage(t *testing.T, content, signature []byte) []byte {
	t.Helper()
	header := "Content-Type: multipart/mixed; boundary=\"" + ribbitBoundary + "\"\r\n\r\n"
	part1 := "--" + ribbitBoundary + "\r\n\r\n" + string(content) + "\r\n"
	part2 := "--" + ribbitBoundary + "\r\n\r\n" + string(signature) + "\r\n"
	closing := "--" + ribbitBoundary + "--\r\n"
	withoutEpilogue := header + part1 + part2 + closing

	sum := sha256.Sum256([]byte(withoutEpilogue))
	checksum := hex.EncodeToString(sum[:])

	return []byte(withoutEpilogue + "Checksum: " + checksum + "\r\n")
}

// serveOnce starts a one-shot TCP listener that writes resp to the first
// connection and closes it, returning the listener's port.
func serveOnce(t *testing.T, resp []byte) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf)
		_, _ = conn.Write(resp)
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestRibbitClientGet(t *testing.T) {
	msg := buildRibbitMessage(t, []byte("cdns content"), []byte("sig"))
	port := serveOnce(t, msg)

	client := NewRibbitClient("127.0.0.1", port, true)
	resp, err := client.Get("v1/products/wow/cdns")
	require.NoError(t, err)
	assert.Equal(t, "cdns content", string(resp.Content))
	assert.Equal(t, "sig", string(resp.Signature))
	assert.NotEmpty(t, resp.Checksum)
}

func TestRibbitClientNoDataFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
		ln.Close()
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	client := NewRibbitClient("127.0.0.1", port, true)
	_, err = client.Get("v1/products/wow/cdns")
	assert.Error(t, err)
}

func TestRibbitRemoteParsesProductFromURL(t *testing.T) {
	msg := buildRibbitMessage(t, []byte("Region!STRING:0\nus\n"), []byte("sig"))
	port := serveOnce(t, msg)

	remote, err := NewRibbitRemote("ribbit://127.0.0.1:"+strconv.Itoa(port)+"/wow", true)
	require.NoError(t, err)
	assert.Equal(t, "wow", remote.product)

	file, _, err := remote.GetPSV("versions")
	require.NoError(t, err)
	assert.Equal(t, []string{"Region"}, file.CleanHeader())
}
