package billing

import (
	"context"

	"github.com/jrsteele09/go-billing-client/pipeline"
)

type Invoices interface {
	List(ctx context.Context) ([]Invoice, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	Create(ctx context.Context, inv *Invoice) (*Invoice, error)
	Update(ctx context.Context, id string, inv *Invoice) (*Invoice, error)
	Delete(ctx context.Context, id string) error
	DownloadPDF(ctx context.Context, id string) (*File, error)
}

type invoicesClient struct {
	*resource[Invoice]
}

func newInvoicesClient(b *base) Invoices {
	return &invoicesClient{resource: &resource[Invoice]{base: b, collection: "invoices"}}
}

// DownloadPDF fetches the rendered invoice document as raw bytes.
func (c *invoicesClient) DownloadPDF(ctx context.Context, id string) (*File, error) {
	path, err := c.scoped(c.collection, id, "pdf")
	if err != nil {
		return nil, err
	}
	f, err := c.download(ctx, path, pipeline.WithHeader("Accept", "application/pdf"))
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		f.Name = "invoice-" + id + ".pdf"
	}
	return f, nil
}
