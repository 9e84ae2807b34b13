package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"labelscan/internal/usecase"
)

var (
	promptIngredients []string
	promptFile        string
	promptExtract     bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render the model prompts without calling a model",
	Long: `Render the analysis prompt for a list of ingredients, with the knowledge
block the retriever would attach. Use --extract for the first-pass prompt.

Examples:
  labelscan prompt -i Sugar -i "Palm Oil" -i Water
  labelscan prompt --file ingredients.txt
  labelscan prompt --extract`,
	Args: cobra.NoArgs,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringArrayVarP(&promptIngredients, "ingredient", "i", nil, "ingredient name (repeatable)")
	promptCmd.Flags().StringVarP(&promptFile, "file", "f", "", "file with one ingredient per line (- for stdin)")
	promptCmd.Flags().BoolVar(&promptExtract, "extract", false, "print the ingredient extraction prompt")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if promptExtract {
		fmt.Fprintln(out, usecase.ExtractPrompt())
		return nil
	}

	names := append([]string(nil), promptIngredients...)
	if promptFile != "" {
		fromFile, err := readIngredientFile(promptFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no ingredients given; use -i, --file or --extract")
	}

	cfg := GetConfig()
	_, matcher, err := loadKnowledge(cfg, GetRootDir(), cfg.Knowledge.Threshold)
	if err != nil {
		return err
	}

	prompt, err := usecase.RenderAnalysisPrompt(names, matcher.Retrieve(names))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, prompt)
	return nil
}
