package cli

import (
	"errors"

	"diglet/internal/models"
	"diglet/internal/utils"

	"github.com/spf13/cobra"
)

var (
	exportAOI     string
	exportOut     string
	exportTables  string
	exportExclude string
)

var errExportFailed = errors.New("export failed: AOI layer not written")

var exportCmd = &cobra.Command{
	Use:   "export [schema]",
	Short: "Export the intersecting rows of each matching table to a GeoPackage",
	Long: `Scans the schema, then writes the AOI and one layer per intersecting
table into the output GeoPackage. Invalid and empty geometries are dropped
and ZM geometries are written as Z. A table that fails is reported and the
export goes on.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportAOI, "aoi", "", "AOI GeoJSON file")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output GeoPackage")
	exportCmd.Flags().StringVar(&exportTables, "tables", "", "comma-separated subset of tables to scan")
	exportCmd.Flags().StringVar(&exportExclude, "exclude", "", "comma-separated tables to leave out of the export")
	_ = exportCmd.MarkFlagRequired("aoi")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	session, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(cmd, session)

	if _, err := session.LoadAOI(cmd.Context(), exportAOI); err != nil {
		return err
	}
	scan, err := session.Scan(cmd.Context(), args[0], utils.SplitList(exportTables))
	if err != nil {
		return err
	}
	printScan(cmd, scan)

	for _, t := range utils.SplitList(exportExclude) {
		if err := session.SetIncluded(t, false); err != nil {
			cmd.PrintErrf("ignoring --exclude %s: %v\n", t, err)
		}
	}

	report, err := session.Export(cmd.Context(), exportOut)
	if err != nil {
		return err
	}

	cmd.Printf("Export to %s:\n", report.Path)
	for _, l := range report.Layers {
		switch l.Outcome {
		case models.LayerWritten:
			cmd.Printf("  %-40s %s (%d features, %d dropped)\n", l.Layer, l.Outcome, l.Features, l.Dropped)
		default:
			cmd.Printf("  %-40s %s %s\n", l.Layer, l.Outcome, l.Reason)
		}
	}
	if !report.Success() {
		return errExportFailed
	}
	return nil
}
