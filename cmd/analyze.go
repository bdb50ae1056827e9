package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/andresmejia3/verdict/internal/analysis"
	"github.com/andresmejia3/verdict/internal/config"
	"github.com/andresmejia3/verdict/internal/dataset"
	"github.com/andresmejia3/verdict/internal/metrics"
	"github.com/andresmejia3/verdict/internal/model"
	"github.com/andresmejia3/verdict/internal/results"
	"github.com/andresmejia3/verdict/internal/store"
	"github.com/andresmejia3/verdict/internal/types"
	"github.com/andresmejia3/verdict/internal/utils"
	"github.com/andresmejia3/verdict/internal/visualize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// errStrayArgument is returned for positional arguments after the two paths when no override flag is active.
var errStrayArgument = errors.New("unexpected argument, extra key=value pairs must follow --cfg-options")

// AnalyzeOptions holds the flags of the analyze command.
type AnalyzeOptions struct {
	ConfigPath    string
	ResultPath    string
	OutDir        string
	TopK          int
	CfgOptions    []string
	LegacyOptions []string
	Report        bool
	MaxWidth      uint
	Workers       int
}

var analyzeOpts AnalyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze <config> <result> [key=value ...]",
	Short: "Rank successful and failed predictions and report per-class metrics",
	Long: `Merges a model's saved predictions with the ground truth of the test dataset described by
the config, prints per-class precision, recall and F1, and optionally writes the top-k
lowest-confidence successes and failures with annotated images to --out-dir.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		opts := analyzeOpts
		opts.ConfigPath = args[0]
		opts.ResultPath = args[1]
		if err := foldExtraArgs(&opts, args[2:]); err != nil {
			cmd.SilenceUsage = false
			return err
		}
		return runAnalyze(cmd.Context(), opts, DB, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOpts.OutDir, "out-dir", "o", "", "Directory to write success/ and fail/ folders with annotated images")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.TopK, "topk", "k", 20, "Number of images to keep in each of success and fail")
	analyzeCmd.Flags().StringArrayVar(&analyzeOpts.CfgOptions, "cfg-options", nil, "Override config settings, key=value (repeatable)")
	analyzeCmd.Flags().StringArrayVar(&analyzeOpts.LegacyOptions, "options", nil, "Deprecated alias of --cfg-options")
	analyzeCmd.Flags().BoolVarP(&analyzeOpts.Report, "report", "r", false, "Print a per-class table after the metric arrays")
	analyzeCmd.Flags().UintVar(&analyzeOpts.MaxWidth, "max-width", 0, "Downscale rendered images wider than this many pixels (0 keeps size)")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.Workers, "workers", "w", runtime.NumCPU(), "Number of images rendered in parallel")
	rootCmd.AddCommand(analyzeCmd)
}

// foldExtraArgs appends positional key=value pairs to whichever override flag was given.
func foldExtraArgs(opts *AnalyzeOptions, extra []string) error {
	if len(extra) == 0 {
		return nil
	}
	switch {
	case len(opts.CfgOptions) > 0:
		opts.CfgOptions = append(opts.CfgOptions, extra...)
	case len(opts.LegacyOptions) > 0:
		opts.LegacyOptions = append(opts.LegacyOptions, extra...)
	default:
		return fmt.Errorf("%w: %q", errStrayArgument, extra[0])
	}
	return nil
}

func validateAnalyzeFlags(opts *AnalyzeOptions) error {
	if opts.TopK < 0 {
		return fmt.Errorf("--topk must be >= 0, got %d", opts.TopK)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return nil
}

// runAnalyze runs the whole pipeline: overrides, results, config, model and dataset, merge,
// ranking, metrics, rendering and archiving. db may be nil.
func runAnalyze(ctx context.Context, opts AnalyzeOptions, db *store.Store, stdout, stderr io.Writer) error {
	// 1. Resolve overrides before touching any file
	overrides, deprecated, err := config.ResolveOverrides(opts.CfgOptions, opts.LegacyOptions)
	if err != nil {
		utils.ShowError("Invalid arguments", err)
		return err
	}
	if deprecated {
		fmt.Fprintln(stderr, "⚠️  --options is deprecated in favor of --cfg-options")
	}
	overrideDict, err := config.ParseOptions(overrides)
	if err != nil {
		utils.ShowError("Invalid override", err)
		return err
	}
	if err := validateAnalyzeFlags(&opts); err != nil {
		utils.ShowError("Configuration Error", err)
		return err
	}

	// 2. Load and validate predictions
	outputs, err := results.Load(opts.ResultPath)
	if err != nil {
		utils.ShowError("Failed to load results", err)
		return err
	}
	if err := results.Validate(outputs); err != nil {
		utils.ShowError("Results are missing prediction fields", err)
		return err
	}

	// 3. Config with overrides
	cfg, err := config.FromFile(opts.ConfigPath)
	if err != nil {
		utils.ShowError("Failed to load config", err)
		return err
	}
	if err := cfg.MergeFromDict(overrideDict); err != nil {
		utils.ShowError("Failed to apply overrides", err)
		return err
	}

	// 4. Model and dataset
	classifier, ds, err := buildModelAndDataset(cfg)
	if err != nil {
		utils.ShowError("Failed to build model and dataset", err)
		return err
	}
	classifier.MaxWidth = opts.MaxWidth
	if err := classifier.CheckClasses(len(ds.Classes)); err != nil {
		fmt.Fprintf(stderr, "⚠️  %v\n", err)
	}
	fmt.Fprintf(stderr, "📂 Loaded %d examples, %d classes from %s\n", ds.Len(), len(ds.Classes), ds.Type)

	gtClasses, err := ds.GtClasses()
	if err != nil {
		utils.ShowError("Invalid ground truth", err)
		return err
	}

	// 5. Merge, sort, partition
	records, err := analysis.Merge(outputs, analysis.GroundTruth{
		Filenames: ds.Filenames(),
		Labels:    ds.GtLabels(),
		Classes:   gtClasses,
	})
	if err != nil {
		utils.ShowError("Failed to merge predictions with ground truth", err)
		return err
	}
	success, fail := analysis.Partition(analysis.SortByScore(records))
	counts := runCounts{total: len(records), success: len(success), fail: len(fail)}
	fmt.Fprintf(stderr, "🔍 %d correct, %d incorrect\n", counts.success, counts.fail)

	// 6. Metrics
	report, err := metrics.PerClass(analysis.Labels(records))
	if err != nil {
		utils.ShowError("Failed to compute metrics", err)
		return err
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(stderr, "⚠️  %s\n", w)
	}
	fmt.Fprintln(stdout, metrics.FormatArray(report.Precision))
	fmt.Fprintln(stdout, metrics.FormatArray(report.Recall))
	fmt.Fprintln(stdout, metrics.FormatArray(report.F1))

	classMetrics := report.Classes(ds.Classes)
	if opts.Report {
		printClassTable(stdout, classMetrics)
	}

	// 7. Top-k
	success = analysis.Truncate(success, opts.TopK)
	fail = analysis.Truncate(fail, opts.TopK)

	if opts.OutDir != "" {
		vopts := visualize.Options{Workers: opts.Workers, Progress: stderr}
		for _, part := range []struct {
			name    string
			records []types.Record
		}{
			{store.PartitionSuccess, success},
			{store.PartitionFail, fail},
		} {
			if err := visualize.Save(ctx, opts.OutDir, part.name, part.records, classifier, vopts); err != nil {
				utils.ShowError("Failed to save "+part.name+" images", err)
				return err
			}
		}
		fmt.Fprintf(stderr, "\n🖼️  Wrote %d success and %d fail images to %s\n", len(success), len(fail), opts.OutDir)
	}

	// 8. Archive
	if db != nil {
		id, err := archiveRun(ctx, db, opts, counts, classMetrics, success, fail, stderr)
		if err != nil {
			utils.ShowError("Failed to archive run", err)
			return err
		}
		fmt.Fprintf(stderr, "💾 Archived run %s\n", id)
	}
	return nil
}

func buildModelAndDataset(cfg *config.Config) (*model.Classifier, *dataset.Dataset, error) {
	var mcfg model.Config
	if err := cfg.Decode("model", &mcfg); err != nil {
		return nil, nil, err
	}
	classifier, err := model.Build(mcfg)
	if err != nil {
		return nil, nil, err
	}

	var dcfg dataset.Config
	if err := cfg.Decode("data.test", &dcfg); err != nil {
		return nil, nil, err
	}
	ds, err := dataset.Build(dcfg)
	if err != nil {
		return nil, nil, err
	}
	return classifier, ds, nil
}

// runCounts are the partition sizes before truncation.
type runCounts struct {
	total, success, fail int
}

// runArchive is the part of *store.Store that archiving needs.
type runArchive interface {
	FindByFingerprint(ctx context.Context, fingerprint string) ([]uuid.UUID, error)
	SaveRun(ctx context.Context, run store.Run) (uuid.UUID, error)
}

func archiveRun(ctx context.Context, db runArchive, opts AnalyzeOptions, counts runCounts,
	classes []types.ClassMetric, success, fail []types.Record, stderr io.Writer) (string, error) {
	fingerprint, err := utils.Fingerprint(opts.ResultPath)
	if err != nil {
		return "", err
	}
	previous, err := db.FindByFingerprint(ctx, fingerprint)
	switch {
	case err != nil:
		fmt.Fprintf(stderr, "⚠️  Could not look up earlier runs of this results file: %v\n", err)
	case len(previous) > 0:
		fmt.Fprintf(stderr, "ℹ️  This results file was already analyzed in run %s\n", previous[0])
	}

	id, err := db.SaveRun(ctx, store.Run{
		ResultsPath:        opts.ResultPath,
		ResultsFingerprint: fingerprint,
		ConfigPath:         opts.ConfigPath,
		TopK:               opts.TopK,
		Total:              counts.total,
		SuccessCount:       counts.success,
		FailCount:          counts.fail,
		Classes:            classes,
		Success:            success,
		Fail:               fail,
	})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func printClassTable(out io.Writer, classes []types.ClassMetric) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tPRECISION\tRECALL\tF1\tSUPPORT")
	fmt.Fprintln(w, "--\t-----\t---------\t------\t--\t-------")
	for _, c := range classes {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%.4f\t%d\n", c.ClassID, c.ClassName, c.Precision, c.Recall, c.F1, c.Support)
	}
	w.Flush()
}
