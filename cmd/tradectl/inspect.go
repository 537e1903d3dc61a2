package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ex-otogi-trade/internal/trade"
)

type catalogEntry struct {
	Ordinal int    `yaml:"ordinal"`
	ID      string `yaml:"id"`
}

type memberView struct {
	Member string   `yaml:"member"`
	Wants  []string `yaml:"wants"`
	Haves  []string `yaml:"haves"`
}

type recordView struct {
	Key        string    `yaml:"key"`
	MemberA    string    `yaml:"member_a"`
	MemberB    string    `yaml:"member_b"`
	AGets      []string  `yaml:"a_gets"`
	BGets      []string  `yaml:"b_gets"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

func newCatalogCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the numbered item catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := opts.loadCatalog()
			if err != nil {
				return err
			}

			entries := make([]catalogEntry, 0, catalog.Count())
			for _, item := range catalog.Items() {
				entries = append(entries, catalogEntry{Ordinal: item.Ordinal, ID: item.ID})
			}
			if opts.Output == formatYAML {
				return writeYAML(cmd.OutOrStdout(), entries)
			}
			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", entry.Ordinal, entry.ID)
			}

			return nil
		},
	}
}

func newListsCommand(opts *RootOptions) *cobra.Command {
	var member string

	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Print member want and have lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := opts.loadCatalog()
			if err != nil {
				return err
			}
			persistence, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer persistence.Close()

			var lists []trade.MemberList
			if member != "" {
				list, err := persistence.Store.MemberList(cmd.Context(), member)
				if err != nil {
					return fmt.Errorf("load member %s: %w", member, err)
				}
				lists = append(lists, list)
			} else {
				snapshot, err := persistence.Store.Snapshot(cmd.Context())
				if err != nil {
					return fmt.Errorf("load snapshot: %w", err)
				}
				for _, id := range snapshot.MemberIDs() {
					lists = append(lists, snapshot[id])
				}
			}

			views := make([]memberView, 0, len(lists))
			for _, list := range lists {
				views = append(views, memberView{
					Member: list.MemberID,
					Wants:  describeSet(catalog, list.Wants),
					Haves:  describeSet(catalog, list.Haves),
				})
			}
			if opts.Output == formatYAML {
				return writeYAML(cmd.OutOrStdout(), views)
			}
			for _, view := range views {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n  wants: %s\n  haves: %s\n",
					view.Member, joinOrNone(view.Wants), joinOrNone(view.Haves))
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "only print this member")

	return cmd
}

func newLedgerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print recorded matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			persistence, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer persistence.Close()

			records, err := persistence.Ledger.Records(cmd.Context())
			if err != nil {
				return fmt.Errorf("load ledger: %w", err)
			}

			views := make([]recordView, 0, len(records))
			for _, record := range records {
				views = append(views, recordView{
					Key:        string(record.Key),
					MemberA:    record.MemberA,
					MemberB:    record.MemberB,
					AGets:      record.AGets,
					BGets:      record.BGets,
					RecordedAt: record.RecordedAt,
				})
			}
			if opts.Output == formatYAML {
				return writeYAML(cmd.OutOrStdout(), views)
			}
			for _, view := range views {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s <-> %s: %s gets %s; %s gets %s\n",
					view.RecordedAt.Format(time.RFC3339),
					view.MemberA, view.MemberB,
					view.MemberA, strings.Join(view.AGets, ", "),
					view.MemberB, strings.Join(view.BGets, ", "),
				)
			}

			return nil
		},
	}
}

// describeSet renders a list in catalog order as "n. ID", retired items last.
func describeSet(catalog *trade.Catalog, set trade.ItemSet) []string {
	described := make([]string, 0, len(set))
	for _, item := range catalog.Items() {
		if set.Has(item.ID) {
			described = append(described, fmt.Sprintf("%d. %s", item.Ordinal, item.ID))
		}
	}
	for _, id := range set.Sorted() {
		if item := catalog.Describe(id); item.Ordinal == 0 {
			described = append(described, id)
		}
	}

	return described
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "None"
	}

	return strings.Join(values, ", ")
}
