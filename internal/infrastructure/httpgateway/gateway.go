// Package httpgateway implements [domain.ProvisioningGateway] against
// the provisioning backend's HTTP API.
//
//	POST {url}/components/{id}/validate   200 {"ok", "message"}
//	PUT  {url}/components/{id}            200 or 202 accepted, 409/422 rejected
//	GET  {url}/components/{id}/status     200 {"status"}, 404 not found
//	GET  {url}/components/{id}/output     200 {"output"}
//
// Non-2xx responses carry {"error": "..."}.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// APIError is a backend response outside the mapped status codes.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provisioning api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("provisioning api error (status=%d): %s", e.StatusCode, e.Message)
}

// Gateway talks to the provisioning backend over HTTP.
type Gateway struct {
	Directory Directory
	http      *http.Client
}

// New returns a Gateway. When tokens is non-nil every request carries
// its bearer token.
func New(dir Directory, tokens oauth2.TokenSource, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if tokens != nil {
		client = &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, tokens),
				Base:   http.DefaultTransport,
			},
		}
	}
	return &Gateway{Directory: dir, http: client}
}

type componentBody struct {
	ProviderKind domain.ProviderKind `json:"provider_kind"`
	Input        domain.Values       `json:"input"`
}

type validateResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type deployResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Status domain.ComponentStatus `json:"status"`
}

type outputResponse struct {
	Output domain.Values `json:"output"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) Validate(ctx context.Context, ref domain.ComponentRef, input domain.Values) (domain.ValidationResult, error) {
	var out validateResponse
	status, msg, err := g.do(ctx, http.MethodPost, ref, "/validate", componentBody{ref.ProviderKind, input}, &out)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if status != http.StatusOK {
		return domain.ValidationResult{}, &APIError{StatusCode: status, Message: msg}
	}
	return domain.ValidationResult{OK: out.OK, Message: out.Message}, nil
}

func (g *Gateway) Deploy(ctx context.Context, ref domain.ComponentRef, input domain.Values) (domain.DeployResult, error) {
	var out deployResponse
	status, msg, err := g.do(ctx, http.MethodPut, ref, "", componentBody{ref.ProviderKind, input}, &out)
	if err != nil {
		return domain.DeployResult{}, err
	}
	switch status {
	case http.StatusOK, http.StatusAccepted:
		return domain.DeployResult{OK: true, Message: out.Message}, nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return domain.DeployResult{OK: false, Message: msg}, nil
	default:
		return domain.DeployResult{}, &APIError{StatusCode: status, Message: msg}
	}
}

func (g *Gateway) GetStatus(ctx context.Context, ref domain.ComponentRef) (domain.ComponentStatus, error) {
	var out statusResponse
	status, msg, err := g.do(ctx, http.MethodGet, ref, "/status", nil, &out)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return out.Status, nil
	case http.StatusNotFound:
		return "", fmt.Errorf("component %s (%s): %w", ref.ProviderKind, ref.Identity, domain.ErrNotFound)
	default:
		return "", &APIError{StatusCode: status, Message: msg}
	}
}

func (g *Gateway) GetOutput(ctx context.Context, ref domain.ComponentRef) (domain.Values, error) {
	var out outputResponse
	status, msg, err := g.do(ctx, http.MethodGet, ref, "/output", nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: msg}
	}
	return out.Output, nil
}

// do sends one request. It decodes 2xx bodies into out and returns the
// error message of any other response alongside its status code.
func (g *Gateway) do(ctx context.Context, method string, ref domain.ComponentRef, suffix string, in, out any) (int, string, error) {
	cfg := g.Directory.Lookup(ref.ProviderKind)
	endpoint := cfg.URL + "/components/" + url.PathEscape(string(ref.Identity)) + suffix

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return 0, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(bytes.TrimSpace(raw)) > 0 && out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return 0, "", fmt.Errorf("decode provisioning response: %w", err)
			}
		}
		return resp.StatusCode, "", nil
	}

	var e errorResponse
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(raw))
	}
	return resp.StatusCode, e.Error, nil
}

// IsAPIError reports whether err is an unmapped backend response.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
