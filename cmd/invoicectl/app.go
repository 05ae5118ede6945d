package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/go-billing-client/billing"
	"github.com/jrsteele09/go-billing-client/company"
	"github.com/jrsteele09/go-billing-client/credentials"
	"github.com/jrsteele09/go-billing-client/internal/config"
	"github.com/jrsteele09/go-billing-client/pipeline"
	"github.com/jrsteele09/go-billing-client/session"
	"github.com/jrsteele09/go-billing-client/storage"
	"github.com/jrsteele09/go-billing-client/storage/filestore"
	"github.com/jrsteele09/go-billing-client/storage/memstore"
	"github.com/jrsteele09/go-billing-client/storage/redisstore"
	"github.com/pkg/errors"
)

// app is the wired client: one storage backend shared by the credential store
// and the company context, one pipeline, one session manager.
type app struct {
	cfg        config.Config
	store      *credentials.Store
	companyCtx *company.Context
	client     *pipeline.Client
	session    *session.Manager
	billing    *billing.Client
	closers    []func() error
}

func newApp(ctx context.Context, cfg config.Config, stderr io.Writer, options ...pipeline.Option) (*app, error) {
	backend, closer, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.store = credentials.New(cfg, backend)
	a.companyCtx = company.NewContext(cfg, backend)

	navigator := pipeline.NavigatorFunc(func(route string) {
		fmt.Fprintf(stderr, "Session expired or rejected (%s). Run `%s login` to sign in again.\n", route, cfg.GetAppName())
	})
	options = append([]pipeline.Option{
		pipeline.WithNavigator(navigator),
		pipeline.WithUserAgent(cfg.GetAppName()),
	}, options...)

	a.client, err = pipeline.New(cfg, a.store, options...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.session = session.New(cfg, a.store, a.client)
	a.closers = append(a.closers, func() error {
		a.session.Dispose()
		return nil
	})
	a.session.Init()

	a.billing = billing.New(a.client, a.companyCtx)
	return a, nil
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, func() error, error) {
	switch cfg.GetStorageBackend() {
	case config.StorageBackendMemory:
		return memstore.New(), nil, nil
	case config.StorageBackendRedis:
		rs, err := redisstore.Dial(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB(), cfg.GetRedisNamespace())
		if err != nil {
			return nil, nil, errors.Wrap(err, "open redis storage")
		}
		return rs, rs.Close, nil
	default:
		var options []filestore.Option
		if secret := cfg.GetStorageSecret(); secret != "" {
			key, err := filestore.ParseSecretKey(secret)
			if err != nil {
				return nil, nil, errors.Wrap(err, "STORAGE_SECRET")
			}
			options = append(options, filestore.WithSecretKey(key))
		}
		fs, err := filestore.New(cfg.GetDataFolder(), options...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open file storage")
		}
		return fs, nil, nil
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
