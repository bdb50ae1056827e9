package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/verdict/internal/store"
	"github.com/spf13/cobra"
)

// defaultDBURL is used by archive commands when nothing else is configured.
const defaultDBURL = "postgres://localhost:5432/verdict"

// annotationDB marks commands that cannot run without the run archive.
const annotationDB = "verdict/requires-db"

var (
	// DB is the global database connection shared by subcommands. It stays nil when
	// analyze runs without a configured archive.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
)

// Version is the application version. Release builds overwrite it with -ldflags.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "verdict",
	Short:   "Classification result analyzer",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		url := resolveDBURL()
		if url == "" {
			if cmd.Annotations[annotationDB] == "" {
				return nil
			}
			// Fallback to local default if no env vars are present
			url = defaultDBURL
		}

		var err error
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// resolveDBURL reads the connection string from the flag, then VERDICT_DB, then the POSTGRES_* variables.
func resolveDBURL() string {
	if dbURL != "" {
		return dbURL
	}
	if url := os.Getenv("VERDICT_DB"); url != "" {
		return url
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return ""
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the run archive (env: VERDICT_DB, POSTGRES_*)")
}
