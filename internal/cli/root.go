// Package cli implements the diglet command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"diglet/internal/config"
	"diglet/internal/logger"
	"diglet/internal/models"
	"diglet/internal/services"

	"github.com/spf13/cobra"
)

var (
	credentialsFile string
	flagProfile     models.ConnectionProfile
	showLog         bool
)

// sessionOpener is replaced in tests.
var sessionOpener = func(ctx context.Context, p models.ConnectionProfile, cfg *config.Config, logr *logger.Logger) (*services.DiagnosticSession, error) {
	return services.OpenSession(ctx, p, cfg, logr)
}

var rootCmd = &cobra.Command{
	Use:   "diglet",
	Short: "Find which PostGIS tables intersect an area of interest",
	Long: `diglet scans the geometry tables of a PostGIS schema for features that
intersect an area of interest (AOI), reports what it found and exports the
intersecting rows of the selected tables into one GeoPackage.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&credentialsFile, "credentials", "", "credential JSON file (host, port, dbname, user, password)")
	pf.StringVar(&flagProfile.Host, "host", "localhost", "database host")
	pf.IntVar(&flagProfile.Port, "port", 5432, "database port")
	pf.StringVar(&flagProfile.DBName, "dbname", "", "database name")
	pf.StringVar(&flagProfile.User, "user", "", "database user")
	pf.StringVar(&flagProfile.Password, "password", "", "database password (defaults to $PGPASSWORD)")
	pf.BoolVar(&showLog, "log", false, "print the session's operation log to stderr when done")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// resolveProfile reads the credential file when given and lets explicitly
// set flags override its fields.
func resolveProfile(cmd *cobra.Command) (models.ConnectionProfile, error) {
	p := flagProfile
	if credentialsFile != "" {
		f, err := os.Open(credentialsFile)
		if err != nil {
			return models.ConnectionProfile{}, models.NewOpError(models.ImportCredentialsError, "open credentials", credentialsFile, err)
		}
		defer f.Close()

		imported, err := services.ImportProfile(f)
		if err != nil {
			return models.ConnectionProfile{}, err
		}
		flags := cmd.Flags()
		if !flags.Changed("host") {
			p.Host = imported.Host
		}
		if !flags.Changed("port") {
			p.Port = imported.Port
		}
		if !flags.Changed("dbname") {
			p.DBName = imported.DBName
		}
		if !flags.Changed("user") {
			p.User = imported.User
		}
		if !flags.Changed("password") {
			p.Password = imported.Password
		}
	}
	if p.Password == "" {
		p.Password = os.Getenv("PGPASSWORD")
	}
	if p.DBName == "" || p.User == "" {
		return models.ConnectionProfile{}, fmt.Errorf("--dbname and --user are required (or --credentials)")
	}
	return p, nil
}

// openSession connects using the resolved profile and reports per-table
// progress on stderr.
func openSession(cmd *cobra.Command) (*services.DiagnosticSession, error) {
	profile, err := resolveProfile(cmd)
	if err != nil {
		return nil, err
	}
	cfg := config.Load()

	session, err := sessionOpener(cmd.Context(), profile, cfg, logger.Nop())
	if err != nil {
		return nil, err
	}
	session.SetProgress(func(done, total int, table string) {
		cmd.PrintErrf("[%d/%d] %s\n", done, total, table)
	})
	return session, nil
}

// closeSession prints the operation log when asked and releases the
// connection.
func closeSession(cmd *cobra.Command, session *services.DiagnosticSession) {
	if showLog {
		for _, e := range session.Log() {
			cmd.PrintErrf("%s %-5s %s", e.Time.Format("15:04:05"), e.Level, e.Message)
			for _, k := range sortedKeys(e.Fields) {
				cmd.PrintErrf(" %s=%v", k, e.Fields[k])
			}
			cmd.PrintErrln()
		}
	}
	_ = session.Close()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
