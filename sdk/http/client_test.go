package http

import (
	"bytes"
	"encoding/pem"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		client, err := NewClient(ClientConfig{})
		require.NoError(err)
		assert.Zero(client.Timeout)
		tr, ok := client.Transport.(*http.Transport)
		require.True(ok)
		assert.Nil(tr.TLSClientConfig)
	})
	t.Run("timeout", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		client, err := NewClient(ClientConfig{Timeout: 5 * time.Second})
		require.NoError(err)
		assert.Equal(5*time.Second, client.Timeout)
	})
	t.Run("skip-verify", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		client, err := NewClient(ClientConfig{SkipVerify: true})
		require.NoError(err)
		tr, ok := client.Transport.(*http.Transport)
		require.True(ok)
		assert.True(tr.TLSClientConfig.InsecureSkipVerify)
	})
	t.Run("invalid-ca-pem", func(t *testing.T) {
		assert := assert.New(t)
		_, err := NewClient(ClientConfig{CAPem: "not a pem"})
		assert.Truef(errors.Is(err, ErrInvalidCertificatePem), "wanted ErrInvalidCertificatePem, got %v", err)
	})
	t.Run("invalid-proxy", func(t *testing.T) {
		assert := assert.New(t)
		_, err := NewClient(ClientConfig{Proxy: "://bad"})
		assert.Truef(errors.Is(err, ErrInvalidProxyURL), "wanted ErrInvalidProxyURL, got %v", err)
	})
}

func TestNewClient_CAPem(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	require.NoError(pem.Encode(&buf, &pem.Block{
		Type:  "CERTIFICATE",
		Bytes: server.Certificate().Raw,
	}))

	client, err := NewClient(ClientConfig{CAPem: buf.String()})
	require.NoError(err)

	resp, err := client.Get(server.URL)
	require.NoError(err)
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(err)
	assert.Equal("ok", string(body))

	// a client without the server's CA must refuse the connection
	bare, err := NewClient(ClientConfig{})
	require.NoError(err)
	_, err = bare.Get(server.URL)
	assert.Error(err)
}
