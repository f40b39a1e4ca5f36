package pinning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/domain"
)

func TestResolveParsesJSONMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/bafymeta", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Question","kind":"video","media":{"cid":"bafymedia","kind":"video"}}`))
	}))
	defer srv.Close()

	r := NewResolver([]string{srv.URL}, time.Second)
	res, err := r.Resolve(context.Background(), "bafymeta")
	require.NoError(t, err)

	require.NotNil(t, res.Meta)
	assert.Equal(t, "Question", res.Meta.Title)
	require.NotNil(t, res.Meta.Media)
	assert.Equal(t, "bafymedia", res.Meta.Media.CID)
	assert.Equal(t, srv.URL+"/ipfs/bafymeta", res.URL)
}

func TestResolvePlainTextHasNoMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Will it rain?\nDetails follow."))
	}))
	defer srv.Close()

	r := NewResolver([]string{srv.URL}, time.Second)
	res, err := r.Resolve(context.Background(), "bafytext")
	require.NoError(t, err)
	assert.Nil(t, res.Meta)
	assert.Equal(t, "Will it rain?\nDetails follow.", string(res.Body))
}

func TestResolveFallsBackToNextGateway(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway busy", http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer good.Close()

	r := NewResolver([]string{bad.URL, good.URL}, time.Second)
	res, err := r.Resolve(context.Background(), "bafyx")
	require.NoError(t, err)
	assert.Equal(t, good.URL+"/ipfs/bafyx", res.URL)
}

func TestResolveAllGatewaysFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewResolver([]string{srv.URL, srv.URL}, time.Second)
	_, err := r.Resolve(context.Background(), "bafyx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all gateways failed")
}

func TestResolveEmptyCID(t *testing.T) {
	r := NewResolver([]string{"https://gw.example"}, time.Second)
	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolveMalformedJSONKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not-json"))
	}))
	defer srv.Close()

	r := NewResolver([]string{srv.URL}, time.Second)
	res, err := r.Resolve(context.Background(), "bafybad")
	require.NoError(t, err)
	assert.Nil(t, res.Meta)
	assert.Equal(t, "{not-json", string(res.Body))
}
