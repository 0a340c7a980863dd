package adminview

import (
	"context"

	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
)

// Panels wires one View per admin table to the API client.
type Panels struct {
	Client    *Client
	Products  *View[catalog.Product]
	Inventory *View[inventory.View]
	Orders    *View[orders.Summary]
}

func NewPanels(c *Client) *Panels {
	return &Panels{
		Client:    c,
		Products:  NewView(func(p catalog.Product) string { return p.ID }),
		Inventory: NewView(func(r inventory.View) string { return r.ID }),
		Orders:    NewView(func(s orders.Summary) string { return s.ID }),
	}
}

// Mount loads every table, the way each admin page fetches on mount.
func (p *Panels) Mount(ctx context.Context) error {
	if err := p.Products.Load(ctx, p.Client.Products); err != nil {
		return err
	}
	if err := p.Inventory.Load(ctx, p.Client.Inventory); err != nil {
		return err
	}
	return p.Orders.Load(ctx, func(ctx context.Context) ([]orders.Summary, error) {
		return p.Client.Orders(ctx, "")
	})
}

func (p *Panels) AdjustStock(ctx context.Context, i int, patch inventory.Patch) error {
	if err := patch.Validate(); err != nil {
		p.Inventory.SetFlash(Failed(err))
		return err
	}
	return p.Inventory.Mutate(ctx, i,
		func(r inventory.View) inventory.View { return inventory.ToView(patch.Apply(r.Record)) },
		func(ctx context.Context, r inventory.View) (inventory.View, error) {
			return p.Client.PatchInventory(ctx, r.ID, patch)
		},
		"Inventory updated")
}

func (p *Panels) SetOrderStatus(ctx context.Context, i int, status orders.Fulfillment) error {
	return p.Orders.Mutate(ctx, i,
		func(s orders.Summary) orders.Summary { s.Status = status; return s },
		func(ctx context.Context, s orders.Summary) (orders.Summary, error) {
			o, err := p.Client.UpdateOrderStatus(ctx, s.ID, status)
			if err != nil {
				return orders.Summary{}, err
			}
			return o.Summary(), nil
		},
		"Order status updated")
}

func (p *Panels) DeleteProduct(ctx context.Context, i int) error {
	return p.Products.Remove(ctx, i, func(ctx context.Context, prod catalog.Product) error {
		return p.Client.DeleteProduct(ctx, prod.ID)
	}, "Product deleted")
}

// EditProduct fetches the product fresh from the server before the editor opens.
func (p *Panels) EditProduct(ctx context.Context, id string) (catalog.Product, error) {
	prod, err := p.Client.Product(ctx, id)
	if err != nil {
		p.Products.SetFlash(Failed(err))
	}
	return prod, err
}
