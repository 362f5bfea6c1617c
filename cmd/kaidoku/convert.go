package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/kaidoku/internal/api"
	"github.com/jackzampolin/kaidoku/internal/pipeline"
)

var (
	convertFlags    = &runFlags{}
	convertOut      string
	convertShowText bool
	convertValidate bool
	convertNoReport bool
)

var errMixedInputs = errors.New("inputs must be all PDFs or all images")

var convertCmd = &cobra.Command{
	Use:   "convert INPUT [INPUT...]",
	Short: "Write a searchable PDF from an image-only PDF or page images",
	Long: `Convert image-only PDFs or page images into searchable PDFs.

A single PDF input is written to --out, or next to the input with the
configured suffix (default "_searchable"). Several PDFs are converted one
after another, each next to its input. Image inputs are combined into one
PDF with a page per image, in the order given.

Pages that fail are kept image-only and listed in the report; the command
still succeeds.

Examples:
  kaidoku convert scan.pdf
  kaidoku convert scan.pdf --out searchable.pdf --workers 4
  kaidoku convert p1.png p2.png p3.png --out book.pdf
  kaidoku convert scan.pdf --threshold 80 -o yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		convertFlags.collect(cmd)
		convertFlags.showText = convertShowText
		convertFlags.validate = convertValidate

		d, cfg, err := newDriver(ctx, convertFlags)
		if err != nil {
			return err
		}

		jobs, err := planConvert(args, convertOut, cfg.Output.Suffix)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			report, err := job.run(ctx, d)
			if err != nil {
				return err
			}
			if !convertNoReport {
				saveReport(ctx, report)
			}
			if err := api.Output(report); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	addRunFlags(convertCmd, convertFlags)
	convertCmd.Flags().StringVarP(&convertOut, "out", "O", "", "output PDF (default: <input><suffix>.pdf)")
	convertCmd.Flags().BoolVar(&convertShowText, "show-text", false, "draw the text layer in red for debugging")
	convertCmd.Flags().BoolVar(&convertValidate, "validate", false, "validate the written PDF")
	convertCmd.Flags().BoolVar(&convertNoReport, "no-report", false, "do not save the run report under the home directory")
}

// convertJob is one output file to produce.
type convertJob struct {
	inputs []string
	output string
	images bool
}

func (j convertJob) run(ctx context.Context, d *pipeline.Driver) (*pipeline.Report, error) {
	if j.images {
		return d.ConvertImages(ctx, j.inputs, j.output)
	}
	return d.Convert(ctx, j.inputs[0], j.output)
}

// planConvert groups inputs into output files.
func planConvert(inputs []string, out, suffix string) ([]convertJob, error) {
	images := 0
	for _, in := range inputs {
		if pipeline.IsImagePath(in) {
			images++
		}
	}

	switch {
	case images == len(inputs):
		if out == "" {
			out = derivedOutput(inputs[0], suffix)
		}
		return []convertJob{{inputs: inputs, output: out, images: true}}, nil
	case images > 0:
		return nil, errMixedInputs
	case len(inputs) == 1:
		if out == "" {
			out = derivedOutput(inputs[0], suffix)
		}
		return []convertJob{{inputs: inputs, output: out}}, nil
	case out != "":
		return nil, fmt.Errorf("--out takes a single PDF input, got %d", len(inputs))
	}

	jobs := make([]convertJob, len(inputs))
	for i, in := range inputs {
		jobs[i] = convertJob{inputs: []string{in}, output: derivedOutput(in, suffix)}
	}
	return jobs, nil
}

// derivedOutput places <stem><suffix>.pdf next to input.
func derivedOutput(input, suffix string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), stem+suffix+".pdf")
}
