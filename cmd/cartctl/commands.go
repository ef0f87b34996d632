package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/service"
)

type variantFlags struct {
	size  string
	color string
}

func (v *variantFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.size, "size", "", "size variant")
	cmd.Flags().StringVar(&v.color, "color", "", "color variant")
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cart and its totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.open()
			if err != nil {
				return err
			}
			cart := engine.Load(cmd.Context(), opts.session)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), cart)
			}
			return printCart(cmd.OutOrStdout(), cart)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		req     service.AddRequest
		variant variantFlags
	)
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product, merging with an existing line of the same variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.open()
			if err != nil {
				return err
			}
			req.ProductID = args[0]
			req.Size = variant.size
			req.Color = variant.color
			cart, err := engine.Add(cmd.Context(), opts.session, req)
			if err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), cart)
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "product name")
	cmd.Flags().Float64Var(&req.UnitPrice, "price", 0, "unit price")
	cmd.Flags().StringVar(&req.ImageRef, "image", "", "image reference")
	cmd.Flags().StringVar(&req.Slug, "slug", "", "product slug")
	cmd.Flags().IntVarP(&req.Quantity, "qty", "q", 1, "quantity to add")
	cmd.Flags().BoolVar(&req.SizeRequired, "requires-size", false, "reject the add when no size is given")
	cmd.Flags().BoolVar(&req.ColorRequired, "requires-color", false, "reject the add when no color is given")
	variant.register(cmd)
	return cmd
}

func newSetCmd(opts *rootOptions) *cobra.Command {
	var variant variantFlags
	cmd := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set a line's quantity (values below 1 are ignored)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			engine, err := opts.open()
			if err != nil {
				return err
			}
			cart, err := engine.SetQuantity(cmd.Context(), opts.session, args[0], variant.size, variant.color, qty)
			if err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), cart)
		},
	}
	variant.register(cmd)
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	var variant variantFlags
	cmd := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.open()
			if err != nil {
				return err
			}
			cart, err := engine.Remove(cmd.Context(), opts.session, args[0], variant.size, variant.color)
			if err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), cart)
		},
	}
	variant.register(cmd)
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.open()
			if err != nil {
				return err
			}
			if err := engine.Clear(cmd.Context(), opts.session); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cart cleared")
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the totals whenever another process changes the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			printTotals(out, time.Now(), engine.Totals(ctx, opts.session))
			unsubscribe := engine.Hub().Subscribe(opts.session, func(e notify.Event) {
				printTotals(out, e.At, engine.Totals(ctx, opts.session))
			})
			defer unsubscribe()

			return engine.Watch(ctx)
		},
	}
}

func printCart(w io.Writer, cart domain.Cart) error {
	if cart.IsEmpty() {
		_, err := fmt.Fprintln(w, "cart is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tSIZE\tCOLOR\tQTY\tPRICE")
	for _, l := range cart.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\n", l.ProductID, l.Name, l.Size, l.Color, l.Quantity, l.UnitPrice)
	}
	totals := cart.Totals()
	fmt.Fprintf(tw, "\t\t\t\t%d\t%.2f\n", totals.ItemCount, totals.Subtotal)
	return tw.Flush()
}

func printTotals(w io.Writer, at time.Time, t domain.Totals) {
	fmt.Fprintf(w, "%s items=%d subtotal=%.2f\n", at.Format(time.RFC3339), t.ItemCount, t.Subtotal)
}

func printJSON(w io.Writer, cart domain.Cart) error {
	data, err := domain.EncodeCart(cart)
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal([]byte(data), &pretty); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{"lines": pretty, "totals": cart.Totals()})
}
