package billing

import (
	"context"
	"io"
	"net/url"

	"github.com/jrsteele09/go-billing-client/pipeline"
)

type Reports interface {
	Download(ctx context.Context, kind string, params url.Values) (*File, error)
}

type reportsClient struct {
	*base
}

func newReportsClient(b *base) Reports {
	return &reportsClient{base: b}
}

// Download fetches a generated report such as "sales" or "tax" with optional filters.
func (c *reportsClient) Download(ctx context.Context, kind string, params url.Values) (*File, error) {
	path, err := c.scoped("reports", kind)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, path, pipeline.WithQuery(params))
}

type Imports interface {
	CSV(ctx context.Context, kind, fileName string, content io.Reader, fields map[string]string) (*ImportResult, error)
}

type importsClient struct {
	*base
}

func newImportsClient(b *base) Imports {
	return &importsClient{base: b}
}

// CSV uploads a CSV file for the backend to parse into the named collection.
func (c *importsClient) CSV(ctx context.Context, kind, fileName string, content io.Reader, fields map[string]string) (*ImportResult, error) {
	path, err := c.scoped("imports", kind)
	if err != nil {
		return nil, err
	}
	resp, err := c.upload(ctx, path, "file", fileName, content, fields)
	if err != nil {
		return nil, err
	}
	return decode[ImportResult](resp)
}
