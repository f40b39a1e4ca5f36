package pinning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forescene/forescene/internal/domain"
)

// maxContentBytes caps how much of a resolved document is read. Records
// reference small JSON metadata or text; raw media is served by URL, not
// fetched here.
const maxContentBytes = 1 << 20

// Resolved is the outcome of fetching a content reference through a gateway.
type Resolved struct {
	Body        []byte
	ContentType string
	URL         string // the gateway URL that answered
	// Meta is non-nil when the content type indicated JSON and the body
	// parsed as a metadata document.
	Meta *domain.ContentMetadata
}

// Resolver fetches content references, trying each configured gateway base
// URL in order until one responds with HTTP success.
type Resolver struct {
	gateways   []string
	httpClient *http.Client
}

// NewResolver creates a Resolver over the given ordered gateway base URLs.
func NewResolver(gateways []string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cleaned := make([]string, 0, len(gateways))
	for _, g := range gateways {
		g = strings.TrimRight(strings.TrimSpace(g), "/")
		if g != "" {
			cleaned = append(cleaned, g)
		}
	}
	return &Resolver{
		gateways:   cleaned,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve fetches the content behind cid. The first gateway to answer with a
// 2xx wins; if every gateway fails, the last error is returned.
func (r *Resolver) Resolve(ctx context.Context, cid string) (Resolved, error) {
	if cid == "" {
		return Resolved{}, fmt.Errorf("pinning: %w: empty content reference", domain.ErrValidation)
	}
	if len(r.gateways) == 0 {
		return Resolved{}, fmt.Errorf("pinning: no gateways configured")
	}

	var lastErr error
	for _, gw := range r.gateways {
		res, err := r.fetch(ctx, gw+"/ipfs/"+cid)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Resolved{}, fmt.Errorf("pinning: resolve %s: %w", cid, ctx.Err())
		}
	}
	return Resolved{}, fmt.Errorf("pinning: resolve %s: all gateways failed: %w", cid, lastErr)
}

func (r *Resolver) fetch(ctx context.Context, url string) (Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Resolved{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused before the next gateway.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxContentBytes))
		return Resolved{}, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return Resolved{}, fmt.Errorf("read response: %w", err)
	}

	res := Resolved{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		URL:         url,
	}
	if strings.Contains(strings.ToLower(res.ContentType), "json") {
		var meta domain.ContentMetadata
		if err := json.Unmarshal(body, &meta); err == nil {
			res.Meta = &meta
		}
	}
	return res, nil
}
