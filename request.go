package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultRequestTimeout applies when neither the context nor the request carries a deadline.
const DefaultRequestTimeout = 15 * time.Second

// Request is a logical request against the Stitch API. Path is relative to the base URL.
type Request struct {
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the raw result of a successful (2xx) round trip.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &RequestError{Kind: RequestErrorDecoding, Err: err}
	}
	return nil
}

// RequestClient issues unauthenticated requests and classifies responses.
type RequestClient struct {
	baseURL        string
	httpClient     *http.Client
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// RequestClientOption configures a RequestClient
type RequestClientOption func(*RequestClient)

// WithHTTPClient sets the HTTP client used for round trips (TLS config, proxies, test transports).
func WithHTTPClient(client *http.Client) RequestClientOption {
	return func(c *RequestClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithDefaultTimeout sets the client-wide request timeout.
func WithDefaultTimeout(d time.Duration) RequestClientOption {
	return func(c *RequestClient) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithRequestLogger sets the logger used for request tracing.
func WithRequestLogger(logger *slog.Logger) RequestClientOption {
	return func(c *RequestClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRequestClient creates a RequestClient for the given server URL
func NewRequestClient(baseURL string, opts ...RequestClientOption) *RequestClient {
	// Keep any path prefix; drop query, fragment and trailing slash
	u, err := url.Parse(baseURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, strings.TrimRight(u.Path, "/"))
	}

	c := &RequestClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		defaultTimeout: DefaultRequestTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized server URL
func (c *RequestClient) BaseURL() string {
	return c.baseURL
}

// DoRequest performs one round trip. Non-2xx responses are returned as *ServiceError,
// connection failures as *RequestError with kind Transport.
func (c *RequestClient) DoRequest(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	if _, ok := ctx.Deadline(); !ok || req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, &RequestError{Kind: RequestErrorEncoding, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("stitch request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Any("error", err))
		return nil, &RequestError{Kind: RequestErrorTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Kind: RequestErrorTransport, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
	}
	return nil, parseErrorResponse(resp.StatusCode, respBody)
}

// DoJSON encodes in as the request body and performs the request.
func (c *RequestClient) DoJSON(ctx context.Context, method, path string, in any) (*Response, error) {
	req, err := newJSONRequest(method, path, in)
	if err != nil {
		return nil, err
	}
	return c.DoRequest(ctx, req)
}

func newJSONRequest(method, path string, in any) (*Request, error) {
	req := &Request{Method: method, Path: path}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, &RequestError{Kind: RequestErrorEncoding, Err: err}
		}
		req.Body = data
	}
	return req, nil
}

// parseErrorResponse turns a non-2xx body into a ServiceError, falling back to
// ErrorCodeUnknown when the body is not a Stitch error document.
func parseErrorResponse(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || (eb.Error == "" && eb.ErrorCode == "") {
		return unknownServiceError(status)
	}
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ServiceError{
		Code:       ParseErrorCode(eb.ErrorCode),
		Message:    msg,
		StatusCode: status,
	}
}

func bearer(token string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	return h
}
