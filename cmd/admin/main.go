// Command admin drives the admin API from a terminal using the same
// optimistic tables as the dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/adminview"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/joho/godotenv"
)

const usage = `usage: admin <command> [args]

commands:
  dashboard
  orders
  set-status <order-id> <pending|processing|shipped|delivered>
  stock <inventory-id> [-qty N] [-min N]
  delete-product <product-id>
  upload-image <product-id> <file>
  reconcile
  resolve <reference>
`

var errUsage = errors.New("bad usage")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base := os.Getenv("ADMIN_API_URL")
	if base == "" {
		base = "http://localhost:8080/api/admin"
	}
	c := adminview.NewClient(base, os.Getenv("ADMIN_TOKEN"))

	if err := run(ctx, adminview.NewPanels(c), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p *adminview.Panels, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "dashboard":
		d, err := p.Client.Dashboard(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "products %d  orders %d  revenue %v\n", d.TotalProducts, d.TotalOrders, d.TotalRevenue)
		for _, r := range d.LowStock {
			fmt.Fprintf(out, "low stock: %s %s/%s %d (min %d)\n", r.ProductName, r.Size, r.Color, r.Quantity, r.MinStock)
		}
		return nil

	case "orders":
		if err := p.Orders.Load(ctx, func(ctx context.Context) ([]orders.Summary, error) {
			return p.Client.Orders(ctx, "")
		}); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, s := range p.Orders.Rows() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\t%s\n", s.ID, s.OrderNumber, s.CustomerName, s.Total, s.Status, s.Payment)
		}
		return tw.Flush()

	case "set-status":
		if len(args) != 2 {
			return errUsage
		}
		status, err := orders.ParseFulfillment(args[1])
		if err != nil {
			return err
		}
		if err := p.Orders.Load(ctx, func(ctx context.Context) ([]orders.Summary, error) {
			return p.Client.Orders(ctx, "")
		}); err != nil {
			return err
		}
		i, err := index(p.Orders, args[0], "order")
		if err != nil {
			return err
		}
		err = p.SetOrderStatus(ctx, i, status)
		fmt.Fprintln(out, p.Orders.Flash())
		return err

	case "stock":
		if len(args) == 0 {
			return errUsage
		}
		fs := flag.NewFlagSet("stock", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		qty := fs.Int("qty", -1, "quantity")
		minStock := fs.Int("min", -1, "minimum stock")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		var patch inventory.Patch
		if *qty >= 0 {
			patch.Quantity = qty
		}
		if *minStock >= 0 {
			patch.MinStock = minStock
		}
		if err := p.Inventory.Load(ctx, p.Client.Inventory); err != nil {
			return err
		}
		i, err := index(p.Inventory, args[0], "inventory row")
		if err != nil {
			return err
		}
		err = p.AdjustStock(ctx, i, patch)
		fmt.Fprintln(out, p.Inventory.Flash())
		return err

	case "delete-product":
		if len(args) != 1 {
			return errUsage
		}
		if err := p.Products.Load(ctx, p.Client.Products); err != nil {
			return err
		}
		i, err := index(p.Products, args[0], "product")
		if err != nil {
			return err
		}
		err = p.DeleteProduct(ctx, i)
		fmt.Fprintln(out, p.Products.Flash())
		return err

	case "upload-image":
		if len(args) != 2 {
			return errUsage
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		prod, err := p.Client.UploadProductImage(ctx, args[0], filepath.Base(args[1]), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s image %s\n", prod.Name, prod.ImageKey)
		return nil

	case "reconcile":
		rows, err := p.Client.Reconciliation(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "nothing to reconcile")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, u := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", u.Reference, u.Event, u.AmountKobo, u.ReceivedAt.Format(time.RFC3339))
		}
		return tw.Flush()

	case "resolve":
		if len(args) != 1 {
			return errUsage
		}
		if err := p.Client.ResolveUnmatched(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "resolved %s\n", args[0])
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func index[T any](v *adminview.View[T], id, what string) (int, error) {
	i := v.Index(id)
	if i < 0 {
		return 0, fmt.Errorf("%s %s not found", what, id)
	}
	return i, nil
}
