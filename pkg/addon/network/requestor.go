// Package network gives addon implementations their only path to the
// outside world: a Requestor pinned to one URL prefix with credentials
// injected at send time.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// PROPFIND is the WebDAV listing method used by OwnCloud-style providers.
const PROPFIND = "PROPFIND"

// CredentialsSource supplies the auth headers injected into every outbound
// request. Implementations may refresh expired tokens before answering;
// a failed refresh surfaces as a CredentialError from Send.
type CredentialsSource interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
}

// StaticHeaders is a CredentialsSource with fixed headers, used by tests and
// by providers whose credentials never expire.
type StaticHeaders http.Header

// AuthHeaders returns the fixed header set.
func (s StaticHeaders) AuthHeaders(context.Context) (http.Header, error) {
	return http.Header(s), nil
}

// Requestor is the constrained HTTP client handed to addon implementations.
// Every request path is resolved against the prefix URL (see FullURL) and
// authenticated from the credentials source.
type Requestor struct {
	transport *Transport
	prefixURL string
	creds     CredentialsSource
}

// NewRequestor pins a requestor to prefixURL using the shared transport.
func NewRequestor(transport *Transport, prefixURL string, creds CredentialsSource) *Requestor {
	if !strings.HasSuffix(prefixURL, "/") {
		prefixURL += "/"
	}
	return &Requestor{transport: transport, prefixURL: prefixURL, creds: creds}
}

// PrefixURL returns the pinned URL prefix.
func (r *Requestor) PrefixURL() string {
	return r.prefixURL
}

// RequestOption customizes a single outbound request.
type RequestOption func(*requestSpec)

type requestSpec struct {
	query   url.Values
	headers http.Header
	body    io.Reader
	bodyCT  string
}

// WithQuery adds percent-encoded query parameters.
func WithQuery(query url.Values) RequestOption {
	return func(spec *requestSpec) {
		if spec.query == nil {
			spec.query = url.Values{}
		}
		for key, values := range query {
			for _, value := range values {
				spec.query.Add(key, value)
			}
		}
	}
}

// WithQueryParam adds one query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(spec *requestSpec) {
		if spec.query == nil {
			spec.query = url.Values{}
		}
		spec.query.Add(key, value)
	}
}

// WithHeader adds a request header. Insertion order is preserved within a key.
func WithHeader(key, value string) RequestOption {
	return func(spec *requestSpec) {
		if spec.headers == nil {
			spec.headers = http.Header{}
		}
		spec.headers.Add(key, value)
	}
}

// WithJSONBody attaches a JSON-encoded request body.
func WithJSONBody(payload any) RequestOption {
	return func(spec *requestSpec) {
		encoded, err := json.Marshal(payload)
		if err != nil {
			// surfaces as a TransportError from Send; the payload is
			// programmer-controlled so this is effectively unreachable
			spec.body = &errReader{err: err}
			return
		}
		spec.body = bytes.NewReader(encoded)
		spec.bodyCT = "application/json"
	}
}

// WithBody attaches a raw request body with the given content type.
func WithBody(contentType string, body io.Reader) RequestOption {
	return func(spec *requestSpec) {
		spec.body = body
		spec.bodyCT = contentType
	}
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }

// Response is the handle returned by Send. The body is fetched lazily:
// call JSON, Text, or Close exactly once.
type Response struct {
	// StatusCode is the provider's HTTP status. Non-2xx responses are not
	// errors; implementations inspect the status themselves.
	StatusCode int

	// Header preserves the provider's response headers, multi-valued.
	Header http.Header

	raw *http.Response
}

// JSON decodes the response body into target and closes the body.
func (resp *Response) JSON(target any) error {
	defer resp.Close()
	if err := json.NewDecoder(resp.raw.Body).Decode(target); err != nil {
		return gverrors.TransportError("decoding response body", err)
	}
	return nil
}

// Text reads the response body as a string and closes the body.
func (resp *Response) Text() (string, error) {
	defer resp.Close()
	content, err := io.ReadAll(resp.raw.Body)
	if err != nil {
		return "", gverrors.TransportError("reading response body", err)
	}
	return string(content), nil
}

// Close releases the response body without reading it.
func (resp *Response) Close() {
	_ = resp.raw.Body.Close()
}

// Send performs one outbound request. relativePath is resolved against the
// requestor's prefix URL; auth headers are injected from the credentials
// source at send time, never stored on the request.
func (r *Requestor) Send(ctx context.Context, method, relativePath string, opts ...RequestOption) (*Response, error) {
	var spec requestSpec
	for _, opt := range opts {
		opt(&spec)
	}

	fullURL, err := FullURL(r.prefixURL, relativePath)
	if err != nil {
		return nil, err
	}
	if len(spec.query) > 0 {
		separator := "?"
		if strings.Contains(fullURL, "?") {
			separator = "&"
		}
		fullURL += separator + spec.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, spec.body)
	if err != nil {
		return nil, gverrors.TransportError("building request", err)
	}
	for key, values := range spec.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if spec.bodyCT != "" {
		req.Header.Set("Content-Type", spec.bodyCT)
	}

	authHeaders, err := r.creds.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}
	for key, values := range authHeaders {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	raw, err := r.transport.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gverrors.New(gverrors.KindCancelled, "request cancelled", ctx.Err())
		}
		return nil, gverrors.TransportError(fmt.Sprintf("%s %s", method, relativePath), err)
	}
	return &Response{StatusCode: raw.StatusCode, Header: raw.Header, raw: raw}, nil
}

// Convenience bindings per HTTP method, same signature as Send minus method.

// Get sends a GET request.
func (r *Requestor) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodGet, path, opts...)
}

// Post sends a POST request.
func (r *Requestor) Post(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodPost, path, opts...)
}

// Put sends a PUT request.
func (r *Requestor) Put(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodPut, path, opts...)
}

// Patch sends a PATCH request.
func (r *Requestor) Patch(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodPatch, path, opts...)
}

// Delete sends a DELETE request.
func (r *Requestor) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodDelete, path, opts...)
}

// Head sends a HEAD request.
func (r *Requestor) Head(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodHead, path, opts...)
}

// Options sends an OPTIONS request.
func (r *Requestor) Options(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, http.MethodOptions, path, opts...)
}

// Propfind sends a WebDAV PROPFIND request.
func (r *Requestor) Propfind(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return r.Send(ctx, PROPFIND, path, opts...)
}
