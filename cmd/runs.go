package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/verdict/internal/store"
	"github.com/andresmejia3/verdict/internal/utils"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:         "runs",
	Short:       "List archived analysis runs",
	Annotations: map[string]string{annotationDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRuns(cmd.Context(), DB, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(ctx context.Context, db *store.Store, out io.Writer) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		utils.ShowError("Failed to list runs", err)
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return nil
	}
	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tRESULTS\tTOTAL\tSUCCESS\tFAIL\tTOPK\tCREATED")
	fmt.Fprintln(w, "--\t-------\t-----\t-------\t----\t----\t-------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", r.ID, r.ResultsPath, r.Total, r.SuccessCount, r.FailCount,
			r.TopK, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
