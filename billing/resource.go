package billing

import (
	"context"
)

// resource implements list/get/create/update/delete for a company-scoped collection.
type resource[T any] struct {
	*base
	collection string
}

func (r *resource[T]) List(ctx context.Context) ([]T, error) {
	path, err := r.scoped(r.collection)
	if err != nil {
		return nil, err
	}
	resp, err := r.requester.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	list, err := decode[[]T](resp)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

func (r *resource[T]) Get(ctx context.Context, id string) (*T, error) {
	path, err := r.scoped(r.collection, id)
	if err != nil {
		return nil, err
	}
	resp, err := r.requester.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func (r *resource[T]) Create(ctx context.Context, v *T) (*T, error) {
	path, err := r.scoped(r.collection)
	if err != nil {
		return nil, err
	}
	resp, err := r.requester.Post(ctx, path, v)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func (r *resource[T]) Update(ctx context.Context, id string, v *T) (*T, error) {
	path, err := r.scoped(r.collection, id)
	if err != nil {
		return nil, err
	}
	resp, err := r.requester.Put(ctx, path, v)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func (r *resource[T]) Delete(ctx context.Context, id string) error {
	path, err := r.scoped(r.collection, id)
	if err != nil {
		return err
	}
	_, err = r.requester.Delete(ctx, path)
	return err
}
