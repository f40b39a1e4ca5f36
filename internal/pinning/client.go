// Package pinning implements the off-chain content client: uploads to the
// pinning provider and content resolution through an ordered list of
// gateways.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/forescene/forescene/internal/domain"
)

// Client is the REST client for the pinning provider. The bearer token is a
// server-side secret and never reaches browser clients; the upload proxy
// route is the only path in.
type Client struct {
	baseURL    string
	token      string
	gatewayURL string
	httpClient *http.Client
}

// NewClient creates a pinning client.
//
// baseURL is the provider API root, e.g. "https://api.pinata.cloud".
// gatewayURL is the preferred gateway used to build resolvable URLs for
// freshly pinned content.
func NewClient(baseURL, token, gatewayURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// pinResponse is the provider's upload response shape.
type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinFile uploads raw bytes through the generic binary endpoint and returns
// the normalized content descriptor. Optional keyvalues are attached as
// pinata-style metadata.
func (c *Client) PinFile(ctx context.Context, name string, data []byte, contentType string, keyvalues map[string]string) (domain.ContentDescriptor, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: write form: %w", err)
	}

	meta := map[string]any{"name": name}
	if len(keyvalues) > 0 {
		meta["keyvalues"] = keyvalues
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: marshal metadata: %w", err)
	}
	if err := mw.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: write metadata: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: close form: %w", err)
	}

	return c.doPin(ctx, "/pinning/pinFileToIPFS", &buf, mw.FormDataContentType())
}

// PinJSON uploads a JSON document through the provider's JSON-specific
// endpoint.
func (c *Client) PinJSON(ctx context.Context, name string, v any) (domain.ContentDescriptor, error) {
	body := map[string]any{
		"pinataContent":  v,
		"pinataMetadata": map[string]any{"name": name},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: marshal json payload: %w", err)
	}
	return c.doPin(ctx, "/pinning/pinJSONToIPFS", bytes.NewReader(payload), "application/json")
}

// doPin sends the upload request and normalizes the response. Non-2xx
// responses propagate the upstream status code and body.
func (c *Client) doPin(ctx context.Context, path string, body io.Reader, contentType string) (domain.ContentDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: upload: %w", err)
	}

	var pr pinResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: decode response: %w", err)
	}
	if pr.IpfsHash == "" {
		return domain.ContentDescriptor{}, fmt.Errorf("pinning: response missing content id")
	}

	desc := domain.ContentDescriptor{
		CID:  pr.IpfsHash,
		Size: pr.PinSize,
	}
	if ts, err := time.Parse(time.RFC3339, pr.Timestamp); err == nil {
		desc.Timestamp = ts
	} else {
		desc.Timestamp = time.Now().UTC()
	}
	if c.gatewayURL != "" {
		desc.URL = c.gatewayURL + "/ipfs/" + pr.IpfsHash
	}
	return desc, nil
}

// checkHTTPStatus maps non-2xx status codes to domain sentinel errors while
// preserving the upstream status and body.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// IsJSONUpload reports whether an uploaded file should go through the
// JSON-specific endpoint, judged by declared content type first and file
// extension second.
func IsJSONUpload(filename, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".json")
}
