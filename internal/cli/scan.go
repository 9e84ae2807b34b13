package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"labelscan/internal/adapter/fs"
	"labelscan/internal/domain"
	"labelscan/internal/usecase"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Analyze one food label image",
	Long: `Extract the ingredients from a label photo, retrieve knowledge for them and
print the grounded health report.

Examples:
  labelscan scan label.jpg
  labelscan scan label.png --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "output as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	path := args[0]

	if !fs.AllowedFile(path, cfg.Server.AllowedExtensions) {
		return fmt.Errorf("unsupported file type: %s (allowed: %s)", path, strings.Join(cfg.Server.AllowedExtensions, ", "))
	}
	image, mimeType, err := fs.ReadImage(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(image)) > cfg.Server.MaxUploadBytes {
		return fmt.Errorf("image is too large: %d bytes (max %d)", len(image), cfg.Server.MaxUploadBytes)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.scan.Scan(cmd.Context(), usecase.ScanInput{
		FileName: filepath.Base(path),
		Image:    image,
		MIMEType: mimeType,
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if scanJSON {
		data, err := json.MarshalIndent(res.Scan, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	printScan(cmd.OutOrStdout(), res.Scan, res.Cached)
	return nil
}

func printScan(w io.Writer, scan domain.Scan, cached bool) {
	r := scan.Report
	fmt.Fprintf(w, "Scan %s (%s)\n", scan.ID, scan.FileName)
	if cached {
		fmt.Fprintln(w, "  (report reused from an earlier scan of the same image)")
	}
	fmt.Fprintf(w, "\nScore:   %d/10\n", r.Score)
	fmt.Fprintf(w, "Verdict: %s\n\n", r.Verdict)
	fmt.Fprintln(w, r.Report)

	if len(r.IngredientsDetail) > 0 {
		fmt.Fprintln(w, "\nIngredients:")
		for _, d := range r.IngredientsDetail {
			fmt.Fprintf(w, "  [%-8s] %s", d.RiskLevel, d.Name)
			if d.Category != "" {
				fmt.Fprintf(w, " (%s)", d.Category)
			}
			if d.Effect != "" {
				fmt.Fprintf(w, ": %s", d.Effect)
			}
			fmt.Fprintln(w)
		}
	}

	if s := r.RAGStats; s != nil {
		fmt.Fprintf(w, "\nKnowledge base: %d found, %d matched, %d not in database\n",
			s.TotalIngredientsFound, s.MatchedInDatabase, s.NotInDatabase)
	}
}
