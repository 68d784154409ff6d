// Package remote is a processing backend that talks to the image service over
// HTTP. Every operation is a multipart POST to /api/<endpoint> carrying the
// image as the "file" part and the parameters as form fields.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"github.com/menta2k/image-editor/internal/logging"
	"github.com/menta2k/image-editor/pkg/client"
	"github.com/menta2k/image-editor/pkg/processing"
	"github.com/menta2k/image-editor/pkg/types"
)

const (
	probeEndpoint = "get-image-info"

	// maxResponseBytes caps response bodies.
	maxResponseBytes = 128 << 20
)

// Config configures the remote client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL string

	// Timeout bounds each request.
	Timeout time.Duration

	// BreakerThreshold is the number of consecutive transport or server
	// failures before requests fail fast.
	BreakerThreshold int

	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// DefaultConfig returns a configuration for a service on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8000",
		Timeout:          60 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Client is a client.Service backed by the remote image service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *bolt.Logger

	// At most one request is in flight per client.
	bulkhead bulkhead.Bulkhead[*response]
	breaker  circuitbreaker.CircuitBreaker[*response]
}

var _ client.Service = (*Client)(nil)

type response struct {
	status      int
	contentType string
	body        []byte
}

// NewClient creates a remote client. A nil httpClient gets one with
// cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *bolt.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported service URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("service URL %q has no host", cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	threshold := uint32(cfg.BreakerThreshold) // #nosec G115 -- positive, checked above

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logging.OrDefault(logger),
		bulkhead: bulkhead.New[*response](bulkhead.Config{
			MaxConcurrent: 1,
		}),
		breaker: circuitbreaker.New[*response](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerCooldown,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}, nil
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Process posts the image to the kind's endpoint and returns the decoded-checked
// result. Failures are *client.ServiceError values.
func (c *Client) Process(ctx context.Context, kind types.Kind, params types.Params, img types.Artifact) (types.Artifact, error) {
	if err := kind.Validate(params); err != nil {
		return types.Artifact{}, &client.ServiceError{Endpoint: string(kind), Message: err.Error(), Err: err}
	}
	endpoint := kind.Endpoint()

	start := time.Now()
	resp, err := c.post(ctx, endpoint, params, img)
	if err != nil {
		c.logFailure(endpoint, err)
		return types.Artifact{}, err
	}

	if _, _, err := processing.Decode(resp.body); err != nil {
		derr := client.DecodeError(endpoint, err)
		c.logFailure(endpoint, derr)
		return types.Artifact{}, derr
	}

	result := types.Artifact{Data: resp.body, Format: formatOf(resp.contentType, params)}
	logging.With(c.logger.Debug()).
		Add(logging.Kind(string(kind)), logging.Bytes(len(result.Data)), logging.Duration(time.Since(start))).
		Msg("remote operation completed")
	return result, nil
}

// Probe asks the service for the image's format, mode and size.
func (c *Client) Probe(ctx context.Context, img types.Artifact) (types.ImageInfo, error) {
	resp, err := c.post(ctx, probeEndpoint, nil, img)
	if err != nil {
		c.logFailure(probeEndpoint, err)
		return types.ImageInfo{}, err
	}

	var body struct {
		Format string `json:"format"`
		Mode   string `json:"mode"`
		Size   []int  `json:"size"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return types.ImageInfo{}, &client.ServiceError{
			Endpoint: probeEndpoint,
			Status:   resp.status,
			Message:  "invalid info response",
			Err:      err,
		}
	}
	if len(body.Size) != 2 {
		return types.ImageInfo{}, &client.ServiceError{
			Endpoint: probeEndpoint,
			Status:   resp.status,
			Message:  fmt.Sprintf("expected size [width, height], got %v", body.Size),
		}
	}

	return types.ImageInfo{
		Width:  body.Size[0],
		Height: body.Size[1],
		Format: body.Format,
		Mode:   body.Mode,
	}, nil
}

// post sends one multipart request through the bulkhead and breaker. Only
// transport failures and 5xx responses count against the breaker; a 4xx is
// the caller's problem and is returned without tripping it.
func (c *Client) post(ctx context.Context, endpoint string, params types.Params, img types.Artifact) (*response, error) {
	body, contentType, err := encodeForm(params, img)
	if err != nil {
		return nil, &client.ServiceError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}

	var rejected *client.ServiceError
	resp, err := c.bulkhead.Execute(ctx, func(ctx context.Context) (*response, error) {
		return c.breaker.Execute(ctx, func(ctx context.Context) (*response, error) {
			resp, err := c.send(ctx, endpoint, body, contentType)
			if err != nil {
				return nil, err
			}
			if resp.status >= 500 {
				return nil, statusError(endpoint, resp)
			}
			if resp.status < 200 || resp.status > 299 {
				rejected = statusError(endpoint, resp)
			}
			return resp, nil
		})
	})

	switch {
	case rejected != nil:
		return nil, rejected
	case err != nil:
		var se *client.ServiceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &client.ServiceError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, endpoint string, body []byte, contentType string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func (c *Client) logFailure(endpoint string, err error) {
	logging.With(c.logger.Warn()).
		Add(logging.Str("endpoint", endpoint), logging.ErrorField(err)).
		Msg("remote request failed")
}

// encodeForm builds the multipart body. Params are written in key order so
// requests are reproducible.
func encodeForm(params types.Params, img types.Artifact) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "image."+extension(img.Format))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, params.String(k)); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// statusError turns a non-2xx response into a ServiceError, taking the
// message from the {"detail": ...} body when there is one.
func statusError(endpoint string, resp *response) *client.ServiceError {
	msg := strings.TrimSpace(string(resp.body))

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(resp.body, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			msg = s
		} else {
			msg = string(body.Detail)
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.status)
	}
	return &client.ServiceError{Endpoint: endpoint, Status: resp.status, Message: msg}
}

// formatOf names the result format, preferring the response Content-Type.
func formatOf(contentType string, params types.Params) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return processing.NormalizeFormat(mt)
	}
	if f := params.String("format"); f != "" {
		return processing.NormalizeFormat(f)
	}
	return "png"
}

func extension(format string) string {
	switch f := processing.NormalizeFormat(format); f {
	case "":
		return "png"
	case "jpeg":
		return "jpg"
	default:
		return f
	}
}
