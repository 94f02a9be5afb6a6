package swidget

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultRequestTimeout bounds every HTTP call to the device.
const defaultRequestTimeout = 10 * time.Second

// transport is the HTTP side of a session: one client per device, with the
// identity header attached to every request.
//
// Swidget devices serve their API over HTTPS with a self-signed certificate,
// so certificate verification is disabled for the device connection.
type transport struct {
	baseURL   string
	tokenName string
	secretKey string
	client    *http.Client
}

func newTransport(host, tokenName, secretKey string, useTLS bool) *transport {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	return &transport{
		baseURL:   fmt.Sprintf("%s://%s", scheme, host),
		tokenName: tokenName,
		secretKey: secretKey,
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // device certs are self-signed
				},
			},
		},
	}
}

// getJSON issues a GET and decodes the JSON response into out.
// Pass a nil out to discard the body.
func (t *transport) getJSON(ctx context.Context, path string, out any) error {
	return t.do(ctx, http.MethodGet, path, nil, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func (t *transport) postJSON(ctx context.Context, path string, body, out any) error {
	return t.do(ctx, http.MethodPost, path, body, out)
}

// deleteJSON issues a DELETE and decodes the response into out.
func (t *transport) deleteJSON(ctx context.Context, path string, out any) error {
	return t.do(ctx, http.MethodDelete, path, nil, out)
}

// do performs one request/response call against the device.
//
// Failure mapping: connector-level failures (DNS, TCP, TLS) become
// ErrConnectivity, HTTP 403 becomes ErrAuthentication, and any other
// non-200 status becomes ErrRequestFailed.
func (t *transport) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %w", ErrRequestFailed, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrRequestFailed, err)
	}
	req.Header.Set(t.tokenName, t.secretKey)
	req.Header.Set("Connection", "keep-alive")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrConnectivity, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrAuthentication, method, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s %s: status %d", ErrRequestFailed, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrRequestFailed, err)
	}
	return nil
}

// close releases idle connections held by the HTTP client.
func (t *transport) close() {
	t.client.CloseIdleConnections()
}
