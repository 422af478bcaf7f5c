package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientSendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{
		Headers:     map[string]string{"X-Trace": "abc"},
		BearerToken: "secret",
	})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, ToolUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "abc", got.Get("X-Trace"))
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
}

func TestHTTPClientCustomUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{UserAgent: "custom/2.0", HighThreadMode: true})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	client.CloseIdleConnections()

	assert.Equal(t, "custom/2.0", agent)
}

func TestJobValidate(t *testing.T) {
	ok := Job{JobType: "http", URL: "https://example.com/a.bin", Connections: 4}
	assert.NoError(t, ok.Validate())

	for name, job := range map[string]Job{
		"type":     {JobType: "ftp", URL: "ftp://x", Connections: 1},
		"url":      {JobType: "http", Connections: 1},
		"zero":     {JobType: "s3", URL: "s3://b/k", Connections: 0},
		"too many": {JobType: "http", URL: "https://x", Connections: 33},
	} {
		err := job.Validate()
		assert.ErrorContains(t, err, "invalid job", name)
	}
}
