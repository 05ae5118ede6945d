package billing

import (
	"context"
	"strconv"

	"github.com/jrsteele09/go-billing-client/pipeline"
)

type Predictions interface {
	Sales(ctx context.Context, horizon int) (*Forecast, error)
	Demand(ctx context.Context, itemID string, horizon int) (*Forecast, error)
}

type predictionsClient struct {
	*base
}

func newPredictionsClient(b *base) Predictions {
	return &predictionsClient{base: b}
}

func (c *predictionsClient) Sales(ctx context.Context, horizon int) (*Forecast, error) {
	return c.forecast(ctx, "sales", horizonOptions(horizon)...)
}

func (c *predictionsClient) Demand(ctx context.Context, itemID string, horizon int) (*Forecast, error) {
	options := horizonOptions(horizon)
	if itemID != "" {
		options = append(options, pipeline.WithQueryParam("item_id", itemID))
	}
	return c.forecast(ctx, "demand", options...)
}

func (c *predictionsClient) forecast(ctx context.Context, kind string, options ...pipeline.RequestOption) (*Forecast, error) {
	path, err := c.scoped("predictions", kind)
	if err != nil {
		return nil, err
	}
	resp, err := c.requester.Get(ctx, path, options...)
	if err != nil {
		return nil, err
	}
	return decode[Forecast](resp)
}

func horizonOptions(horizon int) []pipeline.RequestOption {
	if horizon <= 0 {
		return nil
	}
	return []pipeline.RequestOption{pipeline.WithQueryParam("horizon", strconv.Itoa(horizon))}
}
