package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/verdict/internal/store"
	"github.com/andresmejia3/verdict/internal/types"
	"github.com/andresmejia3/verdict/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var showExamples bool

var showCmd = &cobra.Command{
	Use:         "show <run-id>",
	Short:       "Print the per-class report of an archived run",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := uuid.Parse(args[0])
		if err != nil {
			utils.ShowError("Invalid run ID", err)
			return err
		}
		return runShow(cmd.Context(), DB, id, showExamples, cmd.OutOrStdout())
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showExamples, "examples", "e", false, "Also list the ranked success and fail examples")
	rootCmd.AddCommand(showCmd)
}

func runShow(ctx context.Context, db *store.Store, id uuid.UUID, examples bool, out io.Writer) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		utils.ShowError("Failed to load run", err)
		return err
	}
	printRun(out, run, examples)
	return nil
}

func printRun(out io.Writer, run *store.Run, examples bool) {
	fmt.Fprintf(out, "Run:     %s\n", run.ID)
	fmt.Fprintf(out, "Results: %s\n", run.ResultsPath)
	fmt.Fprintf(out, "Config:  %s\n", run.ConfigPath)
	fmt.Fprintf(out, "Created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Total:   %d (%d success, %d fail)\n\n", run.Total, run.SuccessCount, run.FailCount)

	printClassTable(out, run.Classes)

	if !examples {
		return
	}
	for _, part := range []struct {
		name    string
		records []types.Record
	}{
		{store.PartitionSuccess, run.Success},
		{store.PartitionFail, run.Fail},
	} {
		fmt.Fprintf(out, "\n%s (top %d)\n", part.name, run.TopK)
		printExamples(out, part.records)
	}
}

func printExamples(out io.Writer, records []types.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tFILENAME\tSCORE\tPREDICTED\tTRUTH")
	for i, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\t%s\n", i+1, r.Filename, r.PredScore, r.PredClass, r.GtClass)
	}
	w.Flush()
}
