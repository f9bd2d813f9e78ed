package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"diglet/internal/models"
	"diglet/internal/services"
	"diglet/internal/utils"

	"github.com/spf13/cobra"
)

var (
	scanAOI    string
	scanTables string
	scanReport string
	scanJSON   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [schema]",
	Short: "Count the features of each geometry table that intersect the AOI",
	Long: `Loads the AOI, then checks every geometry table of the schema. Only
valid geometries in the target SRID are compared. Tables that fail are
listed and the scan goes on.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanAOI, "aoi", "", "AOI GeoJSON file")
	scanCmd.Flags().StringVar(&scanTables, "tables", "", "comma-separated subset of tables to scan")
	scanCmd.Flags().StringVar(&scanReport, "report", "", "write the table/count report as CSV")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "output the diagnostic tree as JSON")
	_ = scanCmd.MarkFlagRequired("aoi")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	session, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(cmd, session)

	if _, err := session.LoadAOI(cmd.Context(), scanAOI); err != nil {
		return err
	}
	report, err := session.Scan(cmd.Context(), args[0], utils.SplitList(scanTables))
	if err != nil {
		return err
	}

	if scanReport != "" {
		if err := writeReport(session, scanReport); err != nil {
			return err
		}
		cmd.PrintErrf("report written to %s\n", scanReport)
	}

	if scanJSON {
		nodes, err := session.Hierarchy()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(map[string]any{"tables": nodes, "failures": report.Failures}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printScan(cmd, report)
	return nil
}

func printScan(cmd *cobra.Command, report *models.ScanReport) {
	if len(report.Results) == 0 {
		cmd.Println("No intersecting tables.")
	} else {
		cmd.Println("Intersecting tables:")
		for _, r := range report.Results {
			cmd.Printf("  %-40s %d\n", r.Table, r.Count)
		}
	}
	if len(report.Failures) > 0 {
		cmd.Println("Failed tables:")
		for _, f := range report.Failures {
			cmd.Printf("  %s: %s\n", f.Table, f.Reason)
		}
	}
}

func writeReport(session *services.DiagnosticSession, path string) error {
	rows, err := session.CountReport()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := services.WriteCountReportCSV(f, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
