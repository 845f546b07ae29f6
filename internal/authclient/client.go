// Package authclient is the edge's signed client for the auth service's
// internal endpoints.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/signature"
)

// ErrBadResponse is returned when the auth service answers with something
// other than a JSON document.
var ErrBadResponse = errors.New("auth service returned a non-JSON response")

const (
	loginPath   = "/internal/auth/license/login"
	refreshPath = "/internal/auth/refresh"

	maxResponseBytes = 1 << 20
)

// Client calls the auth service.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *signature.Signer
}

// New returns a Client for baseURL. A nil httpClient gets a 10s timeout
// client.
func New(baseURL string, signer *signature.Signer, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("auth service url is required")
	}
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, signer: signer}, nil
}

// Response is a decoded auth service answer. Body holds the raw JSON so
// failures can be passed through to the browser unchanged. Session is set
// only for a 200 with status ok.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Status     model.Status
	Session    *model.SessionResponse
}

// OK reports whether the call produced a session.
func (r *Response) OK() bool {
	return r.Session != nil
}

// Login forwards a license login.
func (c *Client) Login(ctx context.Context, req model.InternalLoginRequest) (*Response, error) {
	return c.post(ctx, loginPath, req)
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Response, error) {
	return c.post(ctx, refreshPath, model.RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.signer.Sign(req.Header, body)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var envelope model.SessionResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, ErrBadResponse
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw, Status: envelope.Status}
	if resp.StatusCode == http.StatusOK && envelope.Status == model.StatusOK && envelope.Tokens.AccessToken != "" {
		out.Session = &envelope
	}
	return out, nil
}
