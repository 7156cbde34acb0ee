package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/reporting"
)

func newReportCmd(a *app) *cobra.Command {
	var site, format string

	cmd := &cobra.Command{
		Use:   "report STORE",
		Short: "Print the wide cost view of inflight or approved",
		Long: `Report pivots the cost facts of STORE (inflight or approved) into one row
per project with columns <scenario>_<kind>_y<offset>, where offset 0 is the
reporting year. Absent cells print as "-" in table output and null in JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := pif.ParseStoreKind(args[0])
			if err != nil {
				return err
			}

			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer store.Close()

			view, err := svc.WideView(cmd.Context(), kind, site)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return writeViewJSON(cmd.OutOrStdout(), view)
			case "table":
				return writeViewTable(cmd.OutOrStdout(), view)
			default:
				return fmt.Errorf("unknown format %q (valid: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "only this site (default: every site)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func writeViewTable(out io.Writer, v *reporting.View) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := []string{"PIF_ID", "PROJECT_ID", "SITE"}
	for _, c := range v.Columns {
		header = append(header, c.Name())
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, r := range v.Rows {
		cells := []string{r.Project.PIFID, r.Project.ProjectID, r.Project.Site}
		for _, d := range r.Values() {
			if d == nil {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, d.String())
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func writeViewJSON(out io.Writer, v *reporting.View) error {
	type row struct {
		PIFID     string         `json:"pif_id"`
		ProjectID string         `json:"project_id"`
		Site      string         `json:"site"`
		Cells     map[string]any `json:"cells"`
	}
	doc := struct {
		Store  pif.StoreKind `json:"store"`
		Period string        `json:"period"`
		Rows   []row         `json:"rows"`
	}{Store: v.Store, Period: v.Period.String(), Rows: make([]row, 0, len(v.Rows))}

	for _, r := range v.Rows {
		cells := make(map[string]any, len(v.Columns))
		for _, c := range v.Columns {
			if d := r.Value(c); d != nil {
				cells[c.Name()] = d.String()
			} else {
				cells[c.Name()] = nil
			}
		}
		doc.Rows = append(doc.Rows, row{
			PIFID:     r.Project.PIFID,
			ProjectID: r.Project.ProjectID,
			Site:      r.Project.Site,
			Cells:     cells,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
