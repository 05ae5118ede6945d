package pipeline

import (
	"io"
	"net/http"
	"net/url"
)

// Request describes one backend call. At most one of JSON, Multipart and Body is used.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	JSON        any
	Multipart   *MultipartBody
	Body        io.Reader
	ContentType string

	// Blob returns the response body untouched (file downloads)
	Blob bool

	// SkipAuth sends without a bearer token and leaves 401 responses to the caller
	SkipAuth bool
}

type RequestOption func(*Request)

func WithQuery(query url.Values) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for k, vs := range query {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

func WithQueryParam(key, value string) RequestOption {
	return WithQuery(url.Values{key: {value}})
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(key, value)
	}
}

// AsBlob switches the response to binary mode.
func AsBlob() RequestOption {
	return func(r *Request) {
		r.Blob = true
	}
}

// Unauthenticated is for calls made before a session exists, such as login.
func Unauthenticated() RequestOption {
	return func(r *Request) {
		r.SkipAuth = true
	}
}

func WithRawBody(body io.Reader, contentType string) RequestOption {
	return func(r *Request) {
		r.Body = body
		r.ContentType = contentType
	}
}

func newRequest(method, path string, options []RequestOption) *Request {
	r := &Request{Method: method, Path: path}
	for _, opt := range options {
		opt(r)
	}
	return r
}
