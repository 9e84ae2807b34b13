package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"labelscan/internal/domain"
)

var (
	matchIngredients []string
	matchFile        string
	matchThreshold   float64
	matchJSON        bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match ingredient names against the knowledge base",
	Long: `Run the knowledge retriever locally, without a model call. Each name is
resolved by exact lookup, then containment, then fuzzy similarity.

Examples:
  labelscan match -i "Sugar" -i "Citric Acid (E330)"
  labelscan match --file ingredients.txt --threshold 0.8 --json`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringArrayVarP(&matchIngredients, "ingredient", "i", nil, "ingredient name (repeatable)")
	matchCmd.Flags().StringVarP(&matchFile, "file", "f", "", "file with one ingredient per line (- for stdin)")
	matchCmd.Flags().Float64VarP(&matchThreshold, "threshold", "t", -1, "similarity threshold (default from config)")
	matchCmd.Flags().BoolVar(&matchJSON, "json", false, "output as JSON")
}

type matchOutput struct {
	Results   []matchLine               `json:"results"`
	Matched   []domain.IngredientRecord `json:"matched"`
	Unmatched []string                  `json:"unmatched"`
}

type matchLine struct {
	Candidate string  `json:"candidate"`
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"ingredient,omitempty"`
	Tier      string  `json:"tier"`
	Score     float64 `json:"score"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	names := append([]string(nil), matchIngredients...)
	if matchFile != "" {
		fromFile, err := readIngredientFile(matchFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no ingredients given; use -i or --file")
	}

	threshold := cfg.Knowledge.Threshold
	if matchThreshold >= 0 {
		if matchThreshold > 1 {
			return fmt.Errorf("threshold must be within [0,1], got %g", matchThreshold)
		}
		threshold = matchThreshold
	}

	_, matcher, err := loadKnowledge(cfg, GetRootDir(), threshold)
	if err != nil {
		return err
	}

	results := matcher.MatchAll(names)
	retrieval := matcher.Retrieve(names)

	out := cmd.OutOrStdout()
	if matchJSON {
		output := matchOutput{
			Results:   make([]matchLine, len(results)),
			Matched:   retrieval.Matched,
			Unmatched: retrieval.Unmatched,
		}
		for i, r := range results {
			output.Results[i] = newMatchLine(r)
		}
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	for _, r := range results {
		if r.Matched() {
			fmt.Fprintf(out, "%-30s -> %s (id %s) [%s, %.2f]\n", r.Candidate, r.Record.Name, r.Record.ID, r.Tier, r.Score)
		} else {
			fmt.Fprintf(out, "%-30s -> not in database [best %.2f]\n", r.Candidate, r.Score)
		}
	}
	fmt.Fprintf(out, "\nMatched: %d unique records | Unmatched: %d (threshold %.2f)\n",
		len(retrieval.Matched), len(retrieval.Unmatched), threshold)
	return nil
}

func newMatchLine(r domain.MatchResult) matchLine {
	line := matchLine{Candidate: r.Candidate, Tier: r.Tier.String(), Score: r.Score}
	if r.Record != nil {
		line.ID = r.Record.ID
		line.Name = r.Record.Name
	}
	return line
}

// readIngredientFile reads one ingredient per line, skipping blank lines and
// lines starting with '#'.
func readIngredientFile(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open ingredient file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ingredient file: %w", err)
	}
	return names, nil
}
