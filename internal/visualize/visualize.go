// Package visualize writes a ranked record list to disk along with an annotated copy of each image.
package visualize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/verdict/internal/model"
	"github.com/andresmejia3/verdict/internal/types"
	"github.com/andresmejia3/verdict/internal/worker"
	"github.com/schollz/progressbar/v3"
)

// ShowKeys are the record fields drawn onto each image, in drawing order.
var ShowKeys = []string{types.FieldPredScore, types.FieldPredClass, types.FieldGtClass}

// Renderer draws annotations onto an image. *model.Classifier satisfies it.
type Renderer interface {
	ShowResult(imgPath string, anns []model.Annotation, outFile string) error
}

// Options tunes a Save call.
type Options struct {
	// Workers is the number of images rendered concurrently
	Workers int
	// Progress receives the progress bar; nil disables it
	Progress io.Writer
}

// Save creates <outDir>/<name>/, dumps the records to <name>.json and renders every record's
// image into the same folder under its base filename. When base filenames collide the last
// record wins.
func Save(ctx context.Context, outDir, name string, records []types.Record, r Renderer, opts Options) error {
	dir := filepath.Join(outDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	if err := dump(filepath.Join(dir, name+".json"), records); err != nil {
		return err
	}
	jobs := renderJobs(dir, records)
	if len(jobs) == 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("🖼️  Rendering "+name),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	return worker.Run(ctx, opts.Workers, jobs, func(_ int, job renderJob) error {
		if err := r.ShowResult(job.record.Filename, Annotations(job.record), job.out); err != nil {
			return fmt.Errorf("render %s: %w", job.record.Filename, err)
		}
		return nil
	}, func() {
		if bar != nil {
			bar.Add(1)
		}
	})
}

type renderJob struct {
	record types.Record
	out    string
}

// renderJobs maps records to output files named by their base filename. Records sharing an
// output file collapse to the last one, so each file has exactly one writer.
func renderJobs(dir string, records []types.Record) []renderJob {
	last := make(map[string]int, len(records))
	for i, rec := range records {
		last[filepath.Join(dir, filepath.Base(rec.Filename))] = i
	}
	jobs := make([]renderJob, 0, len(last))
	for i, rec := range records {
		out := filepath.Join(dir, filepath.Base(rec.Filename))
		if last[out] == i {
			jobs = append(jobs, renderJob{record: rec, out: out})
		}
	}
	return jobs
}

// Annotations returns the ShowKeys of a record as drawable lines.
func Annotations(rec types.Record) []model.Annotation {
	fields := rec.Fields()
	anns := make([]model.Annotation, 0, len(ShowKeys))
	for _, k := range ShowKeys {
		anns = append(anns, model.Annotation{Key: k, Value: fields[k]})
	}
	return anns
}

func dump(path string, records []types.Record) error {
	if records == nil {
		records = []types.Record{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
