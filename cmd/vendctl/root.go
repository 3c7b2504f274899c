package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-vending/internal/app"
	"github.com/noah-isme/backend-vending/internal/config"
	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/obs"
	"github.com/noah-isme/backend-vending/internal/vending"
)

type rootOptions struct {
	layoutPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "vendctl",
		Short: "Inspect a machine layout and simulate purchases offline",
		Long: `vendctl loads a machine layout file and runs the same engine the API
serves, without Redis or HTTP.

Examples:
  vendctl grid --layout layout.yaml
  vendctl items --layout layout.yaml
  vendctl buy --layout layout.yaml --key a1 --pay note:10`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.layoutPath, "layout", "l", "layout.yaml", "Path to the machine layout file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log machine activity to stderr")

	cmd.AddCommand(newGridCmd(opts), newItemsCmd(opts), newBuyCmd(opts))
	return cmd
}

func (o *rootOptions) machine(stderr io.Writer) (*vending.Machine, error) {
	layout, err := config.LoadLayout(o.layoutPath)
	if err != nil {
		return nil, err
	}
	logger := zerolog.Nop()
	if o.verbose {
		logger = obs.NewLoggerTo(stderr, "console", "debug")
	}
	return app.BuildMachine(&config.Config{MachineID: "vendctl"}, layout, logger, nil, nil)
}

func newGridCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grid",
		Short: "Print every slot with its selection key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := opts.machine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tITEM\tPRICE")
			for _, s := range m.Slots() {
				if s.Item == grid.Empty {
					fmt.Fprintf(tw, "%s\t-\t-\n", s.Key)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Key, s.Item, s.Price)
			}
			return tw.Flush()
		},
	}
}

func newItemsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List the items that can be bought, specials included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := opts.machine(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ITEM\tPRICE")
			for _, it := range m.ListInstockItems() {
				fmt.Fprintf(tw, "%s\t%d\n", it.Name, it.Price)
			}
			return tw.Flush()
		},
	}
}

func joinPieces(pieces []string) string {
	return strings.Join(pieces, ", ")
}
