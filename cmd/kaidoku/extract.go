package main

import (
	"fmt"
	"os"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/kaidoku/internal/api"
	"github.com/jackzampolin/kaidoku/internal/svcctx"
)

var (
	extractFlags = &runFlags{}
	extractOut   string
)

var extractCmd = &cobra.Command{
	Use:   "extract INPUT",
	Short: "Print the recognized text of a PDF or image",
	Long: `Recognize a PDF or image and print its text, one section per page:

  --- ページ 1 ---
  ...

The same confidence threshold as convert applies. With --out the text is
written atomically to a file and the run report is printed instead.

Examples:
  kaidoku extract scan.pdf > scan.txt
  kaidoku extract page.png --lang jpn+eng
  kaidoku extract scan.pdf --out scan.txt -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		extractFlags.collect(cmd)

		d, _, err := newDriver(ctx, extractFlags)
		if err != nil {
			return err
		}

		text, report, err := d.ExtractText(ctx, args[0])
		if err != nil {
			return err
		}

		if extractOut == "" {
			_, err := fmt.Fprint(os.Stdout, text)
			if report.Degraded() {
				svcctx.LoggerFrom(ctx).Warn("some pages have no text", "pages", report.FailedPages())
			}
			return err
		}

		if err := atomicwriter.WriteFile(extractOut, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		report.Output = extractOut
		return api.Output(report)
	},
}

func init() {
	addRunFlags(extractCmd, extractFlags)
	extractCmd.Flags().StringVarP(&extractOut, "out", "O", "", "write text to this file instead of stdout")
}
