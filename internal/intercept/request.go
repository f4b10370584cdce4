package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// Credentials modes, mirroring the fetch API.
const (
	CredentialsOmit       = "omit"
	CredentialsSameOrigin = "same-origin"
	CredentialsInclude    = "include"
)

// FetchOptions is the options half of the (resource, options) calling convention.
type FetchOptions struct {
	Method      string
	Header      http.Header
	Body        []byte
	Credentials string
	Mode        string
}

// Request is the normalized view of an outgoing request. The body is read
// only on first use and kept so the original request can still be forwarded.
type Request struct {
	URL         string
	Method      string
	Header      http.Header
	Credentials string
	Mode        string

	orig    *http.Request
	mu      sync.Mutex
	read    bool
	body    []byte
	bodyErr error
}

var errUnsupportedResource = errors.New("unsupported fetch resource")

// Normalize accepts either calling convention: a *http.Request, or a URL
// (string or *url.URL) with optional options.
func Normalize(ctx context.Context, resource any, opts *FetchOptions) (*Request, error) {
	switch res := resource.(type) {
	case *http.Request:
		return FromHTTP(res), nil
	case string:
		return fromURL(ctx, res, opts)
	case *url.URL:
		return fromURL(ctx, res.String(), opts)
	default:
		return nil, fmt.Errorf("%w: %T", errUnsupportedResource, resource)
	}
}

// FromHTTP wraps an outgoing request without reading its body.
func FromHTTP(req *http.Request) *Request {
	return &Request{
		URL:    req.URL.String(),
		Method: req.Method,
		Header: req.Header,
		orig:   req,
	}
}

func fromURL(ctx context.Context, rawURL string, opts *FetchOptions) (*Request, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if opts.Header != nil {
		req.Header = opts.Header.Clone()
	}
	if opts.Credentials == CredentialsOmit {
		req.Header.Del("Cookie")
	}

	r := FromHTTP(req)
	r.Credentials = opts.Credentials
	r.Mode = opts.Mode
	return r, nil
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	return r.orig.Context()
}

// Body reads the request body once and caches it.
func (r *Request) Body() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.read {
		return r.body, r.bodyErr
	}
	r.read = true
	if r.orig.Body == nil || r.orig.Body == http.NoBody {
		return nil, nil
	}
	r.body, r.bodyErr = io.ReadAll(r.orig.Body)
	_ = r.orig.Body.Close()
	if r.bodyErr != nil {
		r.bodyErr = fmt.Errorf("read request body: %w", r.bodyErr)
	}
	return r.body, r.bodyErr
}

// Original returns the request exactly as the caller issued it. If the body
// was read, it is replayed from the cached bytes.
func (r *Request) Original() (*http.Request, error) {
	r.mu.Lock()
	read, body, err := r.read, r.body, r.bodyErr
	r.mu.Unlock()

	if !read || r.orig.Body == nil || r.orig.Body == http.NoBody {
		return r.orig, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withBody(body, false), nil
}

// WithBody returns a copy of the original request carrying a JSON body.
func (r *Request) WithBody(body []byte) *http.Request {
	return r.withBody(body, true)
}

func (r *Request) withBody(body []byte, isJSON bool) *http.Request {
	out := r.orig.Clone(r.orig.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	out.ContentLength = int64(len(body))
	out.TransferEncoding = nil
	if isJSON {
		out.Header.Set("Content-Type", "application/json")
		if out.Header.Get("Content-Length") != "" {
			out.Header.Set("Content-Length", strconv.Itoa(len(body)))
		}
	}
	return out
}
