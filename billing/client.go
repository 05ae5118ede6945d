// Package billing holds thin clients for the billing backend's resources. They
// pass requests and errors straight through the pipeline.
package billing

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-billing-client/company"
	"github.com/jrsteele09/go-billing-client/pipeline"
	"github.com/pkg/errors"
)

// Requester is the slice of *pipeline.Client the resource clients use.
type Requester interface {
	Get(ctx context.Context, path string, options ...pipeline.RequestOption) (*pipeline.Response, error)
	Post(ctx context.Context, path string, body any, options ...pipeline.RequestOption) (*pipeline.Response, error)
	Put(ctx context.Context, path string, body any, options ...pipeline.RequestOption) (*pipeline.Response, error)
	Delete(ctx context.Context, path string, options ...pipeline.RequestOption) (*pipeline.Response, error)
	Upload(ctx context.Context, path string, body *pipeline.MultipartBody, options ...pipeline.RequestOption) (*pipeline.Response, error)
	Download(ctx context.Context, path string, options ...pipeline.RequestOption) (*pipeline.Response, error)
}

// CompanyContext resolves and records the active company; *company.Context satisfies it.
type CompanyContext interface {
	Save(*company.Company) error
	RequireID() (string, error)
}

const companiesPath = "/companies"

type Client struct {
	Companies   Companies
	Customers   Customers
	Employees   Employees
	Items       Items
	Invoices    Invoices
	Reports     Reports
	Imports     Imports
	Predictions Predictions
}

func New(requester Requester, companyCtx CompanyContext) *Client {
	b := &base{requester: requester, company: companyCtx}
	return &Client{
		Companies:   newCompaniesClient(b),
		Customers:   newCustomersClient(b),
		Employees:   newEmployeesClient(b),
		Items:       newItemsClient(b),
		Invoices:    newInvoicesClient(b),
		Reports:     newReportsClient(b),
		Imports:     newImportsClient(b),
		Predictions: newPredictionsClient(b),
	}
}

type base struct {
	requester Requester
	company   CompanyContext
}

// scoped builds a path under the active company. It fails with company.ErrNoCompany
// before any request is issued when no company has been registered.
func (b *base) scoped(segments ...string) (string, error) {
	id, err := b.company.RequireID()
	if err != nil {
		return "", err
	}
	parts := []string{companiesPath, url.PathEscape(id)}
	for _, s := range segments {
		if s == "" {
			return "", errors.New("empty path segment")
		}
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/"), nil
}

func (b *base) download(ctx context.Context, path string, options ...pipeline.RequestOption) (*File, error) {
	resp, err := b.requester.Download(ctx, path, options...)
	if err != nil {
		return nil, err
	}
	return &File{Name: resp.FileName(), ContentType: resp.ContentType(), Data: resp.Body}, nil
}

func (b *base) upload(ctx context.Context, path, field, fileName string, content io.Reader, fields map[string]string) (*pipeline.Response, error) {
	return b.requester.Upload(ctx, path, &pipeline.MultipartBody{
		Fields: fields,
		Files: []pipeline.MultipartFile{{
			Field:       field,
			FileName:    fileName,
			ContentType: "text/csv",
			Content:     content,
		}},
	})
}

func decode[T any](resp *pipeline.Response) (*T, error) {
	var v T
	if err := resp.DecodeJSON(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
