package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"ex-otogi-trade/internal/trade"
)

type plannedView struct {
	MemberA  string   `yaml:"member_a"`
	MemberB  string   `yaml:"member_b"`
	AGets    []string `yaml:"a_gets"`
	BGets    []string `yaml:"b_gets"`
	Recorded bool     `yaml:"recorded"`
}

type sweepView struct {
	ID         string `yaml:"id"`
	Candidates int    `yaml:"candidates"`
	Recorded   int    `yaml:"recorded"`
	Printed    int    `yaml:"printed"`
	Failures   int    `yaml:"ledger_failures"`
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Record new matches and print them",
		Long: `sweep runs one match sweep against the store. New matches are recorded
in the ledger and printed instead of being messaged to members.

With --dry-run nothing is recorded; every current candidate is printed
together with whether the ledger already holds it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			persistence, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer persistence.Close()

			out := cmd.OutOrStdout()
			printer := &stdoutNotifier{out: out, quiet: opts.Output == formatYAML}
			sweeper, err := trade.NewSweeper(persistence.Store, persistence.Ledger, printer,
				trade.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))),
				trade.WithMatchFunc(trade.FindMatchesIndexed),
			)
			if err != nil {
				return err
			}

			if dryRun {
				return runPlan(cmd.Context(), sweeper, opts, out)
			}

			report, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			view := sweepView{
				ID:         report.ID,
				Candidates: report.Candidates,
				Recorded:   report.Recorded,
				Printed:    report.Notified,
				Failures:   report.LedgerFailures,
			}
			if opts.Output == formatYAML {
				return writeYAML(out, view)
			}
			fmt.Fprintf(out, "sweep %s: %d candidates, %d recorded, %d ledger failures\n",
				view.ID, view.Candidates, view.Recorded, view.Failures)

			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print candidates without recording")

	return cmd
}

func runPlan(ctx context.Context, sweeper *trade.Sweeper, opts *RootOptions, out io.Writer) error {
	planned, err := sweeper.Plan(ctx)
	if err != nil {
		return err
	}

	views := make([]plannedView, 0, len(planned))
	for _, match := range planned {
		views = append(views, plannedView{
			MemberA:  match.Candidate.MemberA,
			MemberB:  match.Candidate.MemberB,
			AGets:    match.Candidate.AGets,
			BGets:    match.Candidate.BGets,
			Recorded: match.Recorded,
		})
	}
	if opts.Output == formatYAML {
		return writeYAML(out, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(out, "no candidates")
		return nil
	}
	for _, view := range views {
		state := "new"
		if view.Recorded {
			state = "recorded"
		}
		fmt.Fprintf(out, "[%s] %s <-> %s: %s gets %s; %s gets %s\n",
			state,
			view.MemberA, view.MemberB,
			view.MemberA, strings.Join(view.AGets, ", "),
			view.MemberB, strings.Join(view.BGets, ", "),
		)
	}

	return nil
}

// stdoutNotifier prints newly recorded matches in place of member messages.
type stdoutNotifier struct {
	out   io.Writer
	quiet bool
}

func (n *stdoutNotifier) NotifyMatch(_ context.Context, record trade.MatchRecord) error {
	if n.quiet {
		return nil
	}
	_, err := fmt.Fprintf(n.out, "match %s <-> %s: %s gets %s; %s gets %s\n",
		record.MemberA, record.MemberB,
		record.MemberA, strings.Join(record.AGets, ", "),
		record.MemberB, strings.Join(record.BGets, ", "),
	)

	return err
}
