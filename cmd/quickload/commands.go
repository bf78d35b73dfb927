package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/internal/exec"
	"github.com/ajitpratap0/quickload/pkg/json"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/registry"
)

func newPreviewCommand() *cobra.Command {
	var configFile, arrowFile string
	var rows int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the first records of a job",
		Long: `Preview runs the job's input on its first partition until enough records are
sampled and prints them as a table.

Example:
  quickload preview -c job.yml --rows 10 --arrow sample.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := loadJob(configFile)
			if err != nil {
				return err
			}
			defer shutdown(j.log)

			src := j.src
			if cmd.Flags().Changed("rows") {
				src = src.With("preview_sample_rows", rows)
			}

			ctx, cancel := signalContext()
			defer cancel()

			mem := memory.NewGoAllocator()
			exe := exec.NewPreviewExecutor(j.system, registry.GetRegistry(),
				exec.WithLogger(j.log), exec.WithAllocator(mem))
			result, err := exe.Preview(ctx, src)
			if err != nil {
				return err
			}
			defer result.Release()

			if err := printTable(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if arrowFile != "" {
				if err := writeArrow(arrowFile, result, mem); err != nil {
					return err
				}
				j.log.Info("wrote arrow sample", zap.String("path", arrowFile), zap.Int("records", result.Records()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the job file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().IntVar(&rows, "rows", exec.DefaultSampleRows, "Number of records to sample")
	cmd.Flags().StringVar(&arrowFile, "arrow", "", "Also write the sampled pages to this Arrow IPC file")
	return cmd
}

func newRunCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job to completion",
		Long: `Run executes every partition of the job's input and prints one JSON report
per partition followed by the totals.

Example:
  quickload run -c job.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := loadJob(configFile)
			if err != nil {
				return err
			}
			defer shutdown(j.log)

			ctx, cancel := signalContext()
			defer cancel()

			exe := exec.NewLocalExecutor(j.system, registry.GetRegistry(), nil, exec.WithLogger(j.log))
			result, err := exe.Run(ctx, j.src)
			if err != nil {
				return err
			}
			return printReports(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the job file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func printTable(out io.Writer, result *exec.PreviewResult) error {
	if result.Schema == nil {
		_, err := fmt.Fprintln(out, "(no schema)")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	cols := result.Schema.Columns()
	for i, c := range cols {
		sep := "\t"
		if i == len(cols)-1 {
			sep = "\n"
		}
		fmt.Fprintf(w, "%s:%s%s", c.Name, c.Type, sep)
	}
	for _, row := range result.Rows() {
		for i, v := range row {
			sep := "\t"
			if i == len(row)-1 {
				sep = "\n"
			}
			fmt.Fprintf(w, "%s%s", v, sep)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "(%d records in %d pages)\n", result.Records(), len(result.Pages))
	return err
}

func writeArrow(path string, result *exec.PreviewResult, mem memory.Allocator) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := record.WriteArrowFile(f, result.Schema, result.Pages, mem); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type runSummary struct {
	JobID      string  `json:"job_id"`
	Partitions int     `json:"partitions"`
	Records    int64   `json:"records"`
	Pages      int64   `json:"pages"`
	Skipped    int64   `json:"skipped"`
	Seconds    float64 `json:"seconds"`
}

func printReports(out io.Writer, result *exec.ExecResult) error {
	enc := json.NewStreamingEncoder(out, false)
	for _, r := range result.Reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	total := result.Total()
	if err := enc.Encode(runSummary{
		JobID:      result.JobID,
		Partitions: len(result.Reports),
		Records:    result.Records,
		Pages:      result.Pages,
		Skipped:    total.Skipped,
		Seconds:    result.Duration.Seconds(),
	}); err != nil {
		return err
	}
	return enc.Close()
}
