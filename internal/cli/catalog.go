package cli

import (
	"github.com/spf13/cobra"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the user schemas of the database",
	Args:  cobra.NoArgs,
	RunE:  runSchemas,
}

var tablesCmd = &cobra.Command{
	Use:   "tables [schema]",
	Short: "List the tables of a schema registered in geometry_columns",
	Args:  cobra.ExactArgs(1),
	RunE:  runTables,
}

func init() {
	rootCmd.AddCommand(schemasCmd)
	rootCmd.AddCommand(tablesCmd)
}

func runSchemas(cmd *cobra.Command, _ []string) error {
	session, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(cmd, session)

	schemas, err := session.Schemas(cmd.Context())
	if err != nil {
		return err
	}
	for _, s := range schemas {
		cmd.Println(s)
	}
	return nil
}

func runTables(cmd *cobra.Command, args []string) error {
	session, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(cmd, session)

	tables, err := session.Tables(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		cmd.Println("No geometry tables found.")
		return nil
	}
	for _, t := range tables {
		cmd.Println(t)
	}
	return nil
}
