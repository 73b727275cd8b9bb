package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kolkov/flexrc/flexrc"
	"github.com/kolkov/flexrc/internal/stress"
)

type scenario func(*stress.Runner, context.Context) (stress.Result, error)

func (a *app) scenarioCmd(use, short string, run scenario) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			res, err := run(r, cmd.Context())
			printResults(cmd.OutOrStdout(), []stress.Result{res})
			return err
		},
	}
}

func (a *app) allCmd() *cobra.Command {
	var everyScheme bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run every scenario the scheme supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			schemes := []stress.Scheme{cfg.Scheme}
			if everyScheme {
				schemes = stress.Schemes
			}

			var all []stress.Result
			for _, s := range schemes {
				cfg.Scheme = s
				r, err := stress.NewRunner(cfg, a.log)
				if err != nil {
					return err
				}
				results, err := r.All(cmd.Context())
				all = append(all, results...)
				if err != nil {
					printResults(cmd.OutOrStdout(), all)
					return err
				}
			}
			printResults(cmd.OutOrStdout(), all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&everyScheme, "every-scheme", false, "run against all three schemes")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := flexrc.GetInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "flexrc-stress version %s (flexrc %s, %d-bit counters)\n",
				version, info.Version, info.CounterBits)
		},
	}
}

func (a *app) runner() (*stress.Runner, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return stress.NewRunner(cfg, a.log)
}

func printResults(w io.Writer, results []stress.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSCHEME\tGOROUTINES\tOPS\tCLAIMS\tREFUSALS\tRELEASES\tELAPSED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Scenario, r.Scheme, r.Goroutines, r.Operations,
			r.Claims, r.Refusals, r.Releases, r.Elapsed.Round(time.Microsecond))
	}
	_ = tw.Flush()

	s := flexrc.ReadStats()
	fmt.Fprintf(w, "\nrecords: %d allocated, %d freed, %d live; conversions: %d/%d into, %d/%d to; %d fallback copies\n",
		s.Allocated, s.Freed, s.Live(),
		s.IntoOK, s.IntoOK+s.IntoFailed, s.ToOK, s.ToOK+s.ToFailed, s.Fallbacks)
}
