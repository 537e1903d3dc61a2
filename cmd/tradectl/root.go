package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ex-otogi-trade/internal/trade"
	"ex-otogi-trade/internal/trade/backend"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

var validFormats = []string{formatText, formatYAML}

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	Store   string
	Path    string
	Catalog string
	Output  string
}

// NewRootCommand creates the tradectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tradectl",
		Short: "Inspect and sweep trade bot state offline",
		Long: `tradectl reads the list store and match ledger written by the bot.

Run it against a stopped bot or a copy of its data; the file store is not
safe to share between processes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(validFormats, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Store, "store", backend.KindSQLite, "store kind (sqlite|file)")
	cmd.PersistentFlags().StringVar(&opts.Path, "path", "", "database file or store directory")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", "", "catalog file (built-in catalog when empty)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", formatText, "output format (text|yaml)")

	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newListsCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))

	return cmd
}

// openBackend opens the durable store named by the root flags.
func (o *RootOptions) openBackend() (*backend.Backend, error) {
	switch o.Store {
	case backend.KindSQLite, backend.KindFile:
	default:
		return nil, fmt.Errorf("unsupported store %q: must be sqlite or file", o.Store)
	}
	if o.Path == "" {
		return nil, fmt.Errorf("--path is required")
	}

	return backend.Open(o.Store, o.Path)
}

func (o *RootOptions) loadCatalog() (*trade.Catalog, error) {
	return trade.LoadCatalogFile(o.Catalog)
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return encoder.Close()
}
