package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"storefront/internal/cart"
	"storefront/internal/client"
	"storefront/internal/domain"
	"storefront/internal/service"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cartctl:", err)
		os.Exit(1)
	}
}

func defaultCartPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "storefront", "cart.json")
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cartctl",
		Usage: "shop the storefront from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Value: "http://localhost:5000", EnvVars: []string{"STOREFRONT_API"}},
			&cli.StringFlag{Name: "cart", Value: defaultCartPath(), EnvVars: []string{"STOREFRONT_CART"}},
			&cli.StringFlag{Name: "token", EnvVars: []string{"STOREFRONT_TOKEN"}, Usage: "bearer token; orders are placed as a guest without one"},
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "add one unit of a product",
				ArgsUsage: "<product id>",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					ref, err := arg(c, 0)
					if err != nil {
						return err
					}
					p, err := apiClient(c).Product(c.Context, ref)
					if err != nil {
						return err
					}
					return ct.Add(cart.Product{ID: p.ID.Hex(), Name: p.Title, Price: p.Price, Image: p.Image, Stock: p.Stock})
				}),
			},
			{
				Name:      "remove",
				Usage:     "remove one unit",
				ArgsUsage: "<product id>",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					id, err := arg(c, 0)
					if err != nil {
						return err
					}
					return ct.RemoveOne(id)
				}),
			},
			{
				Name:      "drop",
				Usage:     "remove a line entirely",
				ArgsUsage: "<product id>",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					id, err := arg(c, 0)
					if err != nil {
						return err
					}
					return ct.RemoveLine(id)
				}),
			},
			{
				Name:      "set",
				Usage:     "set the quantity of a line",
				ArgsUsage: "<product id> <quantity>",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					id, err := arg(c, 0)
					if err != nil {
						return err
					}
					raw, err := arg(c, 1)
					if err != nil {
						return err
					}
					n, err := strconv.ParseInt(raw, 10, 64)
					if err != nil {
						return fmt.Errorf("quantity must be a number: %w", err)
					}
					accepted, err := ct.SetQuantity(id, n)
					if err != nil {
						return err
					}
					if !accepted {
						return fmt.Errorf("quantity %d rejected for %s", n, id)
					}
					return nil
				}),
			},
			{
				Name:  "clear",
				Usage: "empty the cart",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					return ct.Clear()
				}),
			},
			{
				Name:  "show",
				Usage: "print the cart and its checkout quote",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					printCart(c.App.Writer, ct)
					return nil
				}),
			},
			{
				Name:  "checkout",
				Usage: "place an order for the cart and open a payment intent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.StringFlag{Name: "phone"},
					&cli.StringFlag{Name: "street", Required: true},
					&cli.StringFlag{Name: "city", Required: true},
					&cli.StringFlag{Name: "state"},
					&cli.StringFlag{Name: "zip", Required: true},
					&cli.StringFlag{Name: "country", Value: domain.DefaultCountry},
				},
				Action: withCart(checkout),
			},
			{
				Name:      "confirm",
				Usage:     "confirm payment and clear the cart",
				ArgsUsage: "<order id> <payment intent id>",
				Action: withCart(func(c *cli.Context, ct *cart.Cart) error {
					orderID, err := arg(c, 0)
					if err != nil {
						return err
					}
					intentID, err := arg(c, 1)
					if err != nil {
						return err
					}
					o, err := apiClient(c).ConfirmPayment(c.Context, orderID, intentID)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "order %s is %s\n", o.OrderNumber, o.Status)
					return ct.Clear()
				}),
			},
		},
	}
}

func withCart(fn func(c *cli.Context, ct *cart.Cart) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ct, err := cart.Open(cart.NewFileStorage(c.String("cart")))
		if err != nil {
			return err
		}
		return fn(c, ct)
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.New(c.String("api"), client.WithToken(c.String("token")))
}

func arg(c *cli.Context, i int) (string, error) {
	v := c.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("missing argument %d, usage: %s %s", i+1, c.Command.Name, c.Command.ArgsUsage)
	}
	return v, nil
}

func printCart(w io.Writer, ct *cart.Cart) {
	snap := ct.Snapshot()
	if len(snap.Items) == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tQTY\tSTOCK")
	for _, l := range snap.Items {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%d\n", l.ID, l.Name, l.Price, l.Quantity, l.Stock)
	}
	tw.Flush()
	q := ct.Quote()
	fmt.Fprintf(w, "items %d  subtotal %.2f  shipping %.2f  tax %.2f  total %.2f\n",
		snap.TotalQuantity, q.Subtotal, q.Shipping, q.Tax, q.Total)
}

func checkout(c *cli.Context, ct *cart.Cart) error {
	lines := ct.Items()
	if len(lines) == 0 {
		return fmt.Errorf("cart is empty")
	}
	in := buildOrder(lines, ct.Quote(),
		domain.CustomerInfo{
			FirstName: c.String("first-name"),
			LastName:  c.String("last-name"),
			Email:     c.String("email"),
			Phone:     c.String("phone"),
		},
		domain.Address{
			Street:  c.String("street"),
			City:    c.String("city"),
			State:   c.String("state"),
			ZipCode: c.String("zip"),
			Country: c.String("country"),
		})

	api := apiClient(c)
	o, err := api.PlaceOrder(c.Context, in)
	if err != nil {
		return err
	}
	intent, err := api.CreatePaymentIntent(c.Context, o.ID.Hex())
	if err != nil {
		return fmt.Errorf("order %s placed but payment could not start: %w", o.OrderNumber, err)
	}
	fmt.Fprintf(c.App.Writer, "order %s (%s) total %.2f\n", o.OrderNumber, o.ID.Hex(), o.Pricing.Total)
	fmt.Fprintf(c.App.Writer, "client secret %s\n", intent.ClientSecret)
	if id := client.IntentIDFromSecret(intent.ClientSecret); id != "" {
		fmt.Fprintf(c.App.Writer, "after paying run: cartctl confirm %s %s\n", o.ID.Hex(), id)
	}
	return nil
}

// buildOrder turns the cart into an order request; billing is left blank so it follows shipping
func buildOrder(lines []cart.Line, q cart.Quote, customer domain.CustomerInfo, ship domain.Address) service.PlaceOrderInput {
	items := make([]service.OrderItemInput, 0, len(lines))
	for _, l := range lines {
		items = append(items, service.OrderItemInput{ProductID: service.ProductRef(l.ID), Quantity: l.Quantity})
	}
	return service.PlaceOrderInput{
		CustomerInfo:    customer,
		ShippingAddress: ship,
		Items:           items,
		Pricing:         service.PricingInput{Shipping: q.Shipping, Tax: q.Tax},
		PaymentMethod:   domain.DefaultPaymentMethod,
	}
}
