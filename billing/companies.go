package billing

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/go-billing-client/company"
	"github.com/pkg/errors"
)

// Companies registers and reads the user's company.
type Companies interface {
	Register(ctx context.Context, c *company.Company) (*company.Company, error)
	Current(ctx context.Context) (*company.Company, error)
	List(ctx context.Context) ([]company.Company, error)
}

type companiesClient struct {
	*base
}

func newCompaniesClient(b *base) Companies {
	return &companiesClient{base: b}
}

// Register creates the company and records it as the active company context.
func (c *companiesClient) Register(ctx context.Context, in *company.Company) (*company.Company, error) {
	resp, err := c.requester.Post(ctx, companiesPath, in)
	if err != nil {
		return nil, err
	}
	created, err := decodeCompany(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := c.company.Save(created); err != nil {
		return nil, errors.Wrap(err, "[billing Register] company created but not recorded locally")
	}
	return created, nil
}

// Current fetches the active company from the backend.
func (c *companiesClient) Current(ctx context.Context) (*company.Company, error) {
	path, err := c.scoped()
	if err != nil {
		return nil, err
	}
	resp, err := c.requester.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeCompany(resp.Body)
}

// List returns every company the logged-in user can operate.
func (c *companiesClient) List(ctx context.Context) ([]company.Company, error) {
	resp, err := c.requester.Get(ctx, companiesPath)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := resp.DecodeJSON(&raw); err != nil {
		return nil, err
	}
	out := make([]company.Company, 0, len(raw))
	for _, r := range raw {
		decoded, err := decodeCompany(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *decoded)
	}
	return out, nil
}

// decodeCompany reads a company body; the identifier may be named id or company_id.
func decodeCompany(body []byte) (*company.Company, error) {
	created, err := company.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "[billing] unreadable company response")
	}
	if created.ID == "" {
		return nil, errors.New("[billing] company response has no identifier")
	}
	return created, nil
}
