package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"labelscan/internal/adapter/fs"
	"labelscan/internal/usecase"
)

var (
	batchWorkers int
	batchOutput  string
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Analyze every label image in a directory",
	Long: `Walk a directory for label images (batch.includes / batch.excludes in the
config) and analyze each one. Images already analyzed with the same knowledge
base are served from history.

Examples:
  labelscan batch ./photos
  labelscan batch ./photos --workers 4 -o results.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 2, "concurrent scans")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write results as JSON to this file")
}

func runBatch(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	walker := fs.NewWalker(cfg.Batch.Includes, cfg.Batch.Excludes)
	batchUC := usecase.NewBatchUseCase(a.scan, walker, batchWorkers, GetLogger())

	fmt.Printf("Scanning %s...\n", path)

	// Created on the first callback, once the total is known.
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progressCallback := func(processed, total int, currentFile string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Analyzing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(processed) //nolint:errcheck

		elapsed := time.Since(startTime)
		if processed > 0 && elapsed > 0 {
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Analyzing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := batchUC.Run(cmd.Context(), path, progressCallback)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	if len(result.Items) == 0 {
		fmt.Println("No label images found.")
		return nil
	}

	fmt.Printf("\nBatch complete in %s:\n", formatDuration(result.Duration))
	fmt.Printf("  Images analyzed: %d\n", result.Scanned)
	fmt.Printf("  From history:    %d\n", result.Cached)
	fmt.Printf("  Failed:          %d\n", result.Failed)
	if result.Scanned > 0 {
		fmt.Printf("  Average score:   %.1f/10\n", result.AverageScore())
	}

	if result.Failed > 0 {
		fmt.Printf("\nFailures:\n")
		for _, item := range result.Items {
			if item.Error != "" {
				fmt.Printf("  - %s: %s\n", item.Path, item.Error)
			}
		}
	}

	if batchOutput != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(batchOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
		fmt.Printf("\nResults written to: %s\n", batchOutput)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
