// Package pipeline is the single path from the client to the billing backend.
// It attaches the stored bearer token to every call and reacts to 401 responses
// by clearing the stored credentials and sending the user back to login.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-billing-client/internal/config"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	HeaderRequestID = "X-Request-ID"
	contentTypeJSON = "application/json"
)

// Config is the subset of configuration the pipeline reads.
type Config interface {
	config.APIConfig
	config.SessionConfig
}

// Credentials is where the pipeline reads the token from and what it wipes on 401.
type Credentials interface {
	Token() (string, bool)
	Clear()
}

// Navigator performs the hard navigation to the login route after a 401.
type Navigator interface {
	Navigate(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) {
	f(route)
}

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UnauthorizedFunc is notified after the credentials were cleared because of a 401.
type UnauthorizedFunc func()

type Client struct {
	baseURL    *url.URL
	httpClient Doer
	creds      Credentials
	navigator  Navigator
	loginRoute string
	userAgent  string

	listeners      map[uint64]UnauthorizedFunc
	nextListenerID uint64
	listenerLock   sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		c.httpClient = doer
	}
}

func WithNavigator(navigator Navigator) Option {
	return func(c *Client) {
		c.navigator = navigator
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func New(cfg Config, creds Credentials, options ...Option) (*Client, error) {
	baseURL, err := url.Parse(cfg.GetBaseURL())
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "[pipeline New] invalid base url %q", cfg.GetBaseURL())
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.GetHTTPTimeout()},
		creds:      creds,
		loginRoute: cfg.GetLoginRoute(),
		listeners:  make(map[uint64]UnauthorizedFunc),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.navigator == nil {
		c.navigator = NavigatorFunc(func(route string) {
			log.Warn().Str("route", route).Msg("session rejected by backend, login required")
		})
	}
	return c, nil
}

// OnUnauthorized registers fn to run after every 401 on an authenticated call.
// The returned function removes the registration.
func (c *Client) OnUnauthorized(fn UnauthorizedFunc) (unregister func()) {
	c.listenerLock.Lock()
	defer c.listenerLock.Unlock()

	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn
	return func() {
		c.listenerLock.Lock()
		defer c.listenerLock.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) Get(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodGet, path, options))
}

func (c *Client) Post(ctx context.Context, path string, body any, options ...RequestOption) (*Response, error) {
	r := newRequest(http.MethodPost, path, options)
	r.JSON = body
	return c.Do(ctx, r)
}

func (c *Client) Put(ctx context.Context, path string, body any, options ...RequestOption) (*Response, error) {
	r := newRequest(http.MethodPut, path, options)
	r.JSON = body
	return c.Do(ctx, r)
}

func (c *Client) Patch(ctx context.Context, path string, body any, options ...RequestOption) (*Response, error) {
	r := newRequest(http.MethodPatch, path, options)
	r.JSON = body
	return c.Do(ctx, r)
}

func (c *Client) Delete(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodDelete, path, options))
}

// Upload posts a multipart/form-data body.
func (c *Client) Upload(ctx context.Context, path string, body *MultipartBody, options ...RequestOption) (*Response, error) {
	r := newRequest(http.MethodPost, path, options)
	r.Multipart = body
	return c.Do(ctx, r)
}

// Download fetches a binary body.
func (c *Client) Download(ctx context.Context, path string, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, newRequest(http.MethodGet, path, append(options, AsBlob())))
}

// Do sends r. Errors are *NetworkError when no response arrived and *HTTPError
// for non-2xx statuses; request construction problems wrap ErrInvalidRequest.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	req, requestID, err := c.buildRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	// The token is read here, at send time, so a clear that happened while the
	// caller was waiting on something else is always observed.
	authenticated := false
	if !r.SkipAuth {
		if accessToken, ok := c.creds.Token(); ok {
			(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)
			authenticated = true
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Str("request_id", requestID).Msg("api request failed")
		return nil, &NetworkError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	succeeded := resp.StatusCode >= 200 && resp.StatusCode <= 299
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// A failed status is already known; the error is built from whatever
		// part of the body arrived.
		if succeeded {
			return nil, &NetworkError{Method: req.Method, URL: req.URL.String(), Err: errors.Wrap(err, "read response body")}
		}
		log.Debug().Err(err).Int("status", resp.StatusCode).Str("request_id", requestID).Msg("error response body truncated")
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Bool("authenticated", authenticated).
		Dur("elapsed", time.Since(start)).
		Str("request_id", requestID).
		Msg("api request")

	if !succeeded {
		httpErr := newHTTPError(req.Method, req.URL.String(), resp.StatusCode, body)
		if httpErr.Unauthorized() && !r.SkipAuth {
			c.handleUnauthorized(req)
		}
		return nil, httpErr
	}

	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      body,
		RequestID: requestID,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, r *Request) (*http.Request, string, error) {
	if r == nil || r.Method == "" {
		return nil, "", errors.Wrap(apperrors.ErrInvalidRequest, "method is required")
	}

	target, err := c.resolve(r.Path, r.Query)
	if err != nil {
		return nil, "", err
	}

	body, contentType, err := encodeBody(r)
	if err != nil {
		return nil, "", errors.Wrapf(apperrors.ErrInvalidRequest, "%s %s: %v", r.Method, r.Path, err)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, "", errors.Wrapf(apperrors.ErrInvalidRequest, "%s %s: %v", r.Method, r.Path, err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		if r.Blob {
			req.Header.Set("Accept", "*/*")
		} else {
			req.Header.Set("Accept", contentTypeJSON)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(HeaderRequestID, requestID)
	}
	return req, requestID, nil
}

// resolve joins path onto the base URL, keeping any path prefix the base URL carries.
func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "invalid path %q", path)
	}
	if rel.IsAbs() || rel.Host != "" {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "path %q must be relative to the api base url", path)
	}

	target := *c.baseURL
	target.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	target.RawPath = ""

	q := target.Query()
	for k, vs := range rel.Query() {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	target.RawQuery = q.Encode()
	return &target, nil
}

func encodeBody(r *Request) (io.Reader, string, error) {
	switch {
	case r.Multipart != nil:
		buf, contentType, err := r.Multipart.encode()
		if err != nil {
			return nil, "", err
		}
		return buf, contentType, nil
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, "", errors.Wrap(err, "encode json body")
		}
		return bytes.NewReader(data), contentTypeJSON, nil
	case r.Body != nil:
		return r.Body, r.ContentType, nil
	}
	return nil, "", nil
}

// handleUnauthorized clears the stored credentials before anyone is notified, so
// listeners and the caller both observe an empty store.
func (c *Client) handleUnauthorized(req *http.Request) {
	log.Warn().Str("method", req.Method).Str("url", req.URL.String()).Msg("backend returned 401, clearing session")

	c.creds.Clear()

	c.listenerLock.Lock()
	listeners := make([]UnauthorizedFunc, 0, len(c.listeners))
	for id := uint64(0); id < c.nextListenerID; id++ {
		if fn, ok := c.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	c.listenerLock.Unlock()

	for _, fn := range listeners {
		fn()
	}
	c.navigator.Navigate(c.loginRoute)
}
