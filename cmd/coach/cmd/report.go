package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/report"
)

func newReportCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "report",
		Short: "Inspect saved session reports",
	}
	c.PersistentFlags().String("report-dir", "./reports", "directory of saved reports")
	c.PersistentFlags().String("db", "", "SQLite report archive path")

	var format string
	show := &cobra.Command{
		Use:   "show <file|id>",
		Short: "Print a saved report",
		Long: `Print a saved report exactly as it was written. The argument is a file
path, a file name inside the report directory, or an archived report id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.findReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeRecord(cmd.OutOrStdout(), rec, format)
		},
	}
	show.Flags().StringVar(&format, "format", "text", "output format (text, yaml)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved and archived reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listReports(cmd.Context(), cmd.OutOrStdout())
		},
	}

	c.AddCommand(show, list)
	return c
}

// findReport tries the file store first, then the archive.
func (a *app) findReport(ctx context.Context, ref string) (report.Record, error) {
	text, err := report.NewFileStore(a.cfg.Report.Dir).Load(ref)
	if err == nil {
		return report.Record{Path: ref, Text: text}, nil
	}
	if !errors.Is(err, report.ErrNotFound) || a.cfg.Report.DBPath == "" {
		return report.Record{}, err
	}

	archive, err := report.OpenSQLite(a.cfg.Report.DBPath)
	if err != nil {
		return report.Record{}, err
	}
	defer archive.Close()
	return archive.Get(ctx, ref)
}

func writeRecord(w io.Writer, rec report.Record, format string) error {
	switch format {
	case "text", "":
		_, err := io.WriteString(w, rec.Text)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func (a *app) listReports(ctx context.Context, w io.Writer) error {
	files, err := report.NewFileStore(a.cfg.Report.Dir).List()
	if err != nil {
		return err
	}
	for _, name := range files {
		_, _ = fmt.Fprintln(w, name)
	}

	if a.cfg.Report.DBPath == "" {
		return nil
	}
	archive, err := report.OpenSQLite(a.cfg.Report.DBPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	records, err := archive.List(ctx, 0)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCREATED\tTARGET\tACTUAL\tAH\tPATH")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.0fs\t%.1fs\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.TargetSeconds, r.ActualSeconds, r.Disfluencies, r.Path)
	}
	return tw.Flush()
}
