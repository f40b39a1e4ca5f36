package pinning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/domain"
)

func TestPinFile(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.mp4", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte{1, 2, 3}, data)

		var meta map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("pinataMetadata")), &meta))
		assert.Equal(t, "clip.mp4", meta["name"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"IpfsHash":  "bafytest",
			"PinSize":   3,
			"Timestamp": "2026-01-02T03:04:05Z",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", "https://gw.example")
	desc, err := c.PinFile(context.Background(), "clip.mp4", []byte{1, 2, 3}, "video/mp4", map[string]string{"category": "sports"})
	require.NoError(t, err)

	assert.Equal(t, "/pinning/pinFileToIPFS", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Contains(t, gotContentType, "multipart/form-data")

	assert.Equal(t, "bafytest", desc.CID)
	assert.Equal(t, int64(3), desc.Size)
	assert.Equal(t, "https://gw.example/ipfs/bafytest", desc.URL)
	assert.Equal(t, 2026, desc.Timestamp.Year())
}

func TestPinJSONUsesJSONEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": "bafyjson"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "")
	desc, err := c.PinJSON(context.Background(), "meta.json", map[string]string{"title": "x"})
	require.NoError(t, err)

	assert.Equal(t, "/pinning/pinJSONToIPFS", gotPath)
	assert.Equal(t, "bafyjson", desc.CID)
	assert.Empty(t, desc.URL)

	content, ok := gotBody["pinataContent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", content["title"])
}

func TestPinStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		c := NewClient(srv.URL, "tok", "")
		_, err := c.PinJSON(context.Background(), "x", map[string]string{})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		srv.Close()
	}
}

func TestPinMissingHashFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"PinSize": 1})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "")
	_, err := c.PinJSON(context.Background(), "x", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing content id")
}

func TestIsJSONUpload(t *testing.T) {
	assert.True(t, IsJSONUpload("meta.json", ""))
	assert.True(t, IsJSONUpload("blob", "application/json"))
	assert.True(t, IsJSONUpload("blob", "application/ld+json"))
	assert.False(t, IsJSONUpload("clip.mp4", "video/mp4"))
}
