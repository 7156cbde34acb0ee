package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/validation"
)

// readBatch loads a batch from a JSON or YAML file. "-" reads JSON from
// stdin. A bare list of rows is accepted as well as a full batch object.
func readBatch(path string, stdin io.Reader) (pif.Batch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return pif.Batch{}, fmt.Errorf("read batch: %w", err)
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var batch pif.Batch
	if err := unmarshal(data, &batch); err == nil && (len(batch.Rows) > 0 || batch.Site != "") {
		return batch, nil
	}
	var rows []pif.SubmissionRow
	if err := unmarshal(data, &rows); err != nil {
		return pif.Batch{}, fmt.Errorf("parse batch %s: %w", path, err)
	}
	return pif.Batch{Rows: rows}, nil
}

func printReport(w io.Writer, r *validation.Report) {
	for _, res := range r.Failures() {
		fmt.Fprintf(w, "%-7s %s\n", res.Severity, res)
	}
	if r.HasBlocking() {
		fmt.Fprintf(w, "%d blocking failure(s)\n", len(r.Blocking()))
		return
	}
	fmt.Fprintf(w, "valid: %d project(s), %d cost(s)\n", len(r.Projects), len(r.Costs))
}

func newValidateCmd(a *app) *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a batch file without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if site == "" {
				site = batch.Site
			}
			if strings.TrimSpace(site) == "" {
				return pif.ErrSiteRequired
			}

			engine, err := validation.New(a.cfg.ValidationOptions())
			if err != nil {
				return err
			}
			report := engine.Validate(batch.Rows, site)
			printReport(cmd.OutOrStdout(), report)
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "session site (default: the batch's site)")
	return cmd
}

func newSubmitCmd(a *app) *cobra.Command {
	var site, by string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Validate a batch file, stage it and merge it into inflight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if site != "" {
				batch.Site = site
			}
			if by != "" {
				batch.SubmittedBy = by
			}

			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := svc.Submit(cmd.Context(), batch)
			out := cmd.OutOrStdout()
			if res != nil {
				printReport(out, res.Report)
			}
			if err != nil {
				if errors.Is(err, pif.ErrValidationFailed) && res != nil {
					fmt.Fprintf(out, "submission %s rejected\n", res.SubmissionID)
				}
				return err
			}
			fmt.Fprintf(out, "submission %s accepted: %d project(s), %d cost(s) merged into inflight\n",
				res.SubmissionID, res.ProjectsMerged, res.CostsMerged)
			return nil
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "session site (default: the batch's site)")
	cmd.Flags().StringVar(&by, "by", "", "submitter recorded in the audit log")
	return cmd
}
