package cli

import (
	"fmt"
	"os"

	"diglet/internal/services"

	"github.com/spf13/cobra"
)

var credentialsOut string

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Write the connection flags to a credential JSON file",
	Args:  cobra.NoArgs,
	RunE:  runCredentials,
}

func init() {
	credentialsCmd.Flags().StringVarP(&credentialsOut, "out", "o", "", "credential file to write")
	_ = credentialsCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(credentialsCmd)
}

func runCredentials(cmd *cobra.Command, _ []string) error {
	profile, err := resolveProfile(cmd)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(credentialsOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create credentials file: %w", err)
	}
	if err := services.ExportProfile(f, profile); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	cmd.Printf("credentials for %s written to %s\n", profile, credentialsOut)
	return nil
}
