package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/kaidoku/internal/ocr"
	"github.com/jackzampolin/kaidoku/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kaidoku %s\n", version.GitRelease)
		fmt.Printf("  Go:      %s\n", version.GoInfo)
		fmt.Printf("  Commit:  %s\n", version.GitCommit)
		fmt.Printf("  Date:    %s\n", version.GitCommitDate)
		fmt.Printf("  Engines: %s\n", strings.Join(ocr.Engines(), ", "))
	},
}
