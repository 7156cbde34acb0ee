package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pifworks/pif-pipeline/validation"
)

func newPromoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "promote SITE",
		Short: "Archive the site's flagged inflight records into approved",
		Long: `Promote re-validates every inflight record of SITE with both archive and
include flags set, then upserts them into approved, replaces their cost
sets and removes them from inflight in a single transaction.

Running promote twice in a row is safe: the second run finds nothing to
promote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			result, err := svc.Promote(cmd.Context(), args[0])
			if err != nil {
				var blocked *validation.BlockedError
				if errors.As(err, &blocked) {
					for _, f := range blocked.Failures {
						fmt.Fprintln(out, f)
					}
				}
				return err
			}

			fmt.Fprintf(out, "promoted %s: %d project(s), %d cost(s)\n",
				result.Site, result.ProjectsAffected, result.CostsAffected)
			return nil
		},
	}
}
