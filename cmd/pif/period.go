package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pifworks/pif-pipeline/pif"
)

func newPeriodCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Show or change the reporting period",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the reporting period views are built against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := svc.ReportingPeriod(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set YEAR MONTH",
		Short: "Persist a new reporting period",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: year %q", pif.ErrInvalidReportingPeriod, args[0])
			}
			month, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: month %q", pif.ErrInvalidReportingPeriod, args[1])
			}

			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer store.Close()

			p := pif.ReportingPeriod{Year: year, Month: month}
			if err := svc.SetReportingPeriod(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reporting period set to %s\n", p)
			return nil
		},
	})

	return cmd
}
