package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ingest <path...>",
		Short: "Ingest documents",
		Long:  "Chunks, embeds, and indexes the given files. Re-ingesting a filename replaces its previous chunks.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectFiles(args, recursive)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files to ingest")
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.ingest.IngestAll(cmd.Context(), paths)
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into directories")

	return cmd
}

// collectFiles expands the arguments into a sorted list of regular
// files. Directories require --recursive.
func collectFiles(args []string, recursive bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use --recursive)", arg)
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func printReport(cmd *cobra.Command, report *domain.IngestReport) {
	for _, doc := range report.Docs {
		switch doc.Outcome {
		case domain.DocOutcomeIngested:
			cmd.Printf("ingested  %s  (%d chunks, %d from cache)\n", doc.Filename, doc.Chunks, doc.FromCache)
		case domain.DocOutcomeSkipped:
			cmd.Printf("skipped   %s  (%s)\n", doc.Filename, doc.Reason)
		case domain.DocOutcomeFailed:
			cmd.Printf("failed    %s  (%s)\n", doc.Filename, doc.Reason)
		}
	}
	ingested, skipped, failed := report.Counts()
	cmd.Printf("%d ingested, %d skipped, %d failed in %s\n", ingested, skipped, failed, report.Duration.Round(time.Millisecond))
}
