// Package api is the HTTP client of the media-tracking service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// SessionSource yields the session to authenticate a request with. It is
// consulted right before every authenticated request is built.
type SessionSource interface {
	Current(ctx context.Context) (models.Session, error)
}

// Options configure a Client.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks JSON to the backing service.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	sessions SessionSource
}

// New constructs a Client for baseURL. sessions may be nil for clients that
// only call public endpoints.
func New(baseURL string, sessions SessionSource, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must use http or https", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if _, ok := base.(*loggingTransport); !ok {
		wrapped := *httpClient
		wrapped.Transport = &loggingTransport{base: base}
		httpClient = &wrapped
	}

	return &Client{baseURL: parsed, http: httpClient, sessions: sessions}, nil
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   authMode
}

type authMode int

const (
	authNone authMode = iota
	// authOptional attaches the credential when a valid session exists.
	authOptional
	authRequired
)

// do performs the request and decodes a successful JSON body into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome.FromContext(ctxErr)
		}
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) build(ctx context.Context, req request) (*http.Request, error) {
	var token string
	if req.auth != authNone {
		if c.sessions == nil {
			if req.auth == authRequired {
				return nil, outcome.ErrAuthRequired
			}
		} else {
			sess, err := c.sessions.Current(ctx)
			switch {
			case err == nil:
				token = sess.Token
			case req.auth == authRequired:
				return nil, err
			}
		}
	}

	target := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome.FromContext(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcome.FromContext(err)
	}
	return fmt.Errorf("%w: %w", outcome.ErrNetwork, err)
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Errors  map[string]any `json:"errors"`
}

func (b errorBody) text() string {
	if b.Error != "" {
		return b.Error
	}
	if len(b.Errors) > 0 {
		fields := make([]string, 0, len(b.Errors))
		for field, problem := range b.Errors {
			fields = append(fields, fmt.Sprintf("%s: %v", field, flatten(problem)))
		}
		sort.Strings(fields)
		return strings.Join(fields, "; ")
	}
	return b.Message
}

func flatten(problem any) string {
	switch v := problem.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return outcome.NewAPIError(resp.StatusCode, body.text(), kindForStatus(resp.StatusCode))
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return outcome.ErrAuthRequired
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return outcome.ErrValidation
	case status == http.StatusNotFound:
		return outcome.ErrNotFound
	case status == http.StatusConflict:
		return outcome.ErrConflict
	case status >= http.StatusInternalServerError:
		return outcome.ErrNetwork
	default:
		return outcome.ErrValidation
	}
}
