package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/verdict/internal/store"
	"github.com/andresmejia3/verdict/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetArchive bool
	resetOut     string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the run archive and rendered output",
	Long:  "Drops the archive tables. With --out, also deletes a rendered output directory. Each step asks for confirmation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing the archive
		if !resetArchive && resetOut == "" {
			resetArchive = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if resetArchive {
			if DB == nil {
				var err error
				if DB, err = store.New(cmd.Context(), defaultDBURL); err != nil {
					utils.ShowError("Failed to connect to database", err)
					return err
				}
			}
			if confirm(reader, out, "⚠️  Are you sure you want to DROP all archive tables?") {
				fmt.Fprintln(out, "🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err)
					return err
				}
			}
		}

		if resetOut != "" {
			if confirm(reader, out, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", resetOut)) {
				fmt.Fprintln(out, "🗑️  Clearing Output Files...")
				removeDir(resetOut)
			}
		}

		fmt.Fprintln(out, "✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetArchive, "archive", false, "Clear the PostgreSQL run archive")
	resetCmd.Flags().StringVar(&resetOut, "out", "", "Rendered output directory to delete")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
