package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"labelscan/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var (
	extractPrompt  = mustReadTemplate("templates/extract_prompt.txt")
	analysisPrompt = template.Must(
		template.New("analysis").Funcs(templateFuncs()).Parse(mustReadTemplate("templates/analysis_prompt.txt")),
	)
)

func mustReadTemplate(name string) string {
	data, err := promptTemplates.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("prompt template %s: %v", name, err))
	}
	return string(data)
}

// PromptData is the input of the analysis prompt.
type PromptData struct {
	Ingredients []string
	Matched     []domain.IngredientRecord
	Unmatched   []string
}

// ExtractPrompt returns the prompt that asks the model to list the
// ingredients printed on a label.
func ExtractPrompt() string {
	return extractPrompt
}

// RenderAnalysisPrompt builds the second-pass prompt, folding matched
// knowledge base records and the unmatched names into it.
func RenderAnalysisPrompt(ingredients []string, retrieval domain.Retrieval) (string, error) {
	data := PromptData{
		Ingredients: ingredients,
		Matched:     retrieval.Matched,
		Unmatched:   retrieval.Unmatched,
	}

	var buf bytes.Buffer
	if err := analysisPrompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		"formatKnowledge": func(records []domain.IngredientRecord) string {
			if len(records) == 0 {
				return ""
			}
			var sb strings.Builder
			sb.WriteString("## INGREDIENT KNOWLEDGE BASE (verified data):\n")
			for _, r := range records {
				sb.WriteString(fmt.Sprintf("- **%s** | Category: %s | Effect: %s | Detail: %s\n",
					r.Name, r.Category, r.EffectSummary, r.HealthEffect))
			}
			sb.WriteString("\n")
			return sb.String()
		},
		"formatUnmatched": func(names []string) string {
			if len(names) == 0 {
				return ""
			}
			return "## INGREDIENTS NOT IN DATABASE (use your general knowledge):\n" +
				strings.Join(names, ", ") + "\n\n"
		},
	}
}
