package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/money"
)

type buyOptions struct {
	key  string
	item string
	pay  []string
}

func newBuyCmd(root *rootOptions) *cobra.Command {
	opts := &buyOptions{}
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Simulate one purchase and print the order and change",
		Long: `buy selects an item by key or name, inserts the given pieces and collects.
Pieces are written as kind:value, for example coin:5 or note:20. When the
machine cannot complete the sale the inserted pieces are refunded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.key == "") == (opts.item == "") {
				return errors.New("exactly one of --key or --item is required")
			}
			pieces, err := money.ParsePieces(opts.pay)
			if err != nil {
				return err
			}
			m, err := root.machine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var selected inventory.Item
			if opts.key != "" {
				selected, err = m.SelectByKey(ctx, opts.key)
			} else {
				selected.Name = opts.item
				selected.Price, err = m.SelectItemAndGetPrice(ctx, inventory.Item{Name: opts.item})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "selected %s for %d\n", selected.Name, selected.Price)

			for _, p := range pieces {
				if p.IsCoin() {
					err = m.InsertCoin(p)
				} else {
					err = m.InsertNote(p)
				}
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "balance %d\n", m.CurrentBalance())

			order, err := m.CollectItemOrder(ctx)
			if err != nil {
				refund := m.RefundAndReturnChange(ctx)
				fmt.Fprintf(out, "refunded %d [%s]\n", refund.Value(), joinPieces(pieceNames(refund.Pieces())))
				return err
			}
			fmt.Fprintf(out, "order %s: %s\n", order.ID, order.Item.Name)
			fmt.Fprintf(out, "change %d [%s]\n", order.Change.Value(), joinPieces(pieceNames(order.Change.Pieces())))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.key, "key", "k", "", "Selection key such as a1")
	cmd.Flags().StringVarP(&opts.item, "item", "i", "", "Item name")
	cmd.Flags().StringSliceVarP(&opts.pay, "pay", "p", nil, "Pieces to insert, comma separated")
	return cmd
}

func pieceNames(pieces []money.Piece) []string {
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.String()
	}
	return out
}
