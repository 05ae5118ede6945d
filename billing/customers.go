package billing

import "context"

type Customers interface {
	List(ctx context.Context) ([]Customer, error)
	Get(ctx context.Context, id string) (*Customer, error)
	Create(ctx context.Context, c *Customer) (*Customer, error)
	Update(ctx context.Context, id string, c *Customer) (*Customer, error)
	Delete(ctx context.Context, id string) error
}

func newCustomersClient(b *base) Customers {
	return &resource[Customer]{base: b, collection: "customers"}
}

type Employees interface {
	List(ctx context.Context) ([]Employee, error)
	Get(ctx context.Context, id string) (*Employee, error)
	Create(ctx context.Context, e *Employee) (*Employee, error)
	Update(ctx context.Context, id string, e *Employee) (*Employee, error)
	Delete(ctx context.Context, id string) error
}

func newEmployeesClient(b *base) Employees {
	return &resource[Employee]{base: b, collection: "employees"}
}

type Items interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	Create(ctx context.Context, i *Item) (*Item, error)
	Update(ctx context.Context, id string, i *Item) (*Item, error)
	Delete(ctx context.Context, id string) error
}

func newItemsClient(b *base) Items {
	return &resource[Item]{base: b, collection: "items"}
}
