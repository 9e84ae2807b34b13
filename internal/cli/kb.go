package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"labelscan/internal/adapter/knowledge"
	"labelscan/internal/domain"
)

var (
	kbJSON     bool
	kbCategory string
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the ingredient knowledge base",
	Long: `Inspect the knowledge base configured in knowledge.sources (the bundled
table when none is configured).

Examples:
  labelscan kb stats
  labelscan kb list --category sweetener`,
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base size, sources and categories",
	Args:  cobra.NoArgs,
	RunE:  runKBStats,
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge base records",
	Args:  cobra.NoArgs,
	RunE:  runKBList,
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbStatsCmd, kbListCmd)
	kbCmd.PersistentFlags().BoolVar(&kbJSON, "json", false, "output as JSON")
	kbListCmd.Flags().StringVarP(&kbCategory, "category", "c", "", "only records whose category contains this text")
}

type kbStats struct {
	Sources     []string       `json:"sources"`
	Records     int            `json:"records"`
	Names       int            `json:"names"`
	Fingerprint string         `json:"fingerprint"`
	Categories  map[string]int `json:"categories"`
}

func collectStats(kb *knowledge.KnowledgeBase) kbStats {
	stats := kbStats{
		Sources:     kb.Sources,
		Records:     kb.Index.SourceSize(),
		Names:       kb.Index.Len(),
		Fingerprint: kb.Fingerprint,
		Categories:  make(map[string]int),
	}
	for _, r := range kb.Index.Records() {
		stats.Categories[categoryGroup(r.Category)]++
	}
	return stats
}

// categoryGroup strips a trailing code such as "(E330)" from a category.
func categoryGroup(category string) string {
	if i := strings.Index(category, "("); i > 0 {
		category = category[:i]
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return "Uncategorized"
	}
	return category
}

func runKBStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	kb, _, err := loadKnowledge(cfg, GetRootDir(), cfg.Knowledge.Threshold)
	if err != nil {
		return err
	}
	stats := collectStats(kb)

	if kbJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Knowledge base:\n")
	fmt.Printf("  Records:     %d\n", stats.Records)
	fmt.Printf("  Names:       %d\n", stats.Names)
	fmt.Printf("  Fingerprint: %s\n", stats.Fingerprint)
	fmt.Printf("  Scorer:      %s (threshold %.2f)\n", cfg.Knowledge.Scorer, cfg.Knowledge.Threshold)
	fmt.Printf("\nSources:\n")
	for _, s := range stats.Sources {
		fmt.Printf("  - %s\n", s)
	}

	names := make([]string, 0, len(stats.Categories))
	for name := range stats.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if stats.Categories[names[i]] != stats.Categories[names[j]] {
			return stats.Categories[names[i]] > stats.Categories[names[j]]
		}
		return names[i] < names[j]
	})
	fmt.Printf("\nCategories:\n")
	for _, name := range names {
		fmt.Printf("  %-30s %d\n", name, stats.Categories[name])
	}
	return nil
}

func runKBList(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	kb, _, err := loadKnowledge(cfg, GetRootDir(), cfg.Knowledge.Threshold)
	if err != nil {
		return err
	}

	records := make([]domain.IngredientRecord, 0, kb.Index.Len())
	filter := strings.ToLower(kbCategory)
	for _, r := range kb.Index.Records() {
		if filter == "" || strings.Contains(strings.ToLower(r.Category), filter) {
			records = append(records, r)
		}
	}

	if kbJSON {
		output, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	for _, r := range records {
		fmt.Printf("%4s  %-32s %-32s %s\n", r.ID, r.Name, r.Category, r.EffectSummary)
	}
	fmt.Printf("\n%d records\n", len(records))
	return nil
}
