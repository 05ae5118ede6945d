package pipeline

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/pkg/errors"
)

// Response is a successful (2xx) reply with its body fully read.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// DecodeJSON unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) DecodeJSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

func (r *Response) ContentType() string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

// FileName returns the filename from Content-Disposition, or "" when the backend sent none.
func (r *Response) FileName() string {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return params["filename"]
}
