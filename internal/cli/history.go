package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"labelscan/internal/adapter/store"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past scans",
	Long: `List scans recorded in the history store, newest first.

Examples:
  labelscan history --limit 5
  labelscan history show 2c1f0a8e-...
  labelscan history clear`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded scan",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd, historyDeleteCmd, historyClearCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of scans (0 for all)")
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "output as JSON")
}

// openExistingHistory opens the history store without creating it.
func openExistingHistory() (*store.HistoryStore, error) {
	cfg := GetConfig()
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in the config")
	}
	if cfg.History.Backend == "memory" {
		return nil, fmt.Errorf("history uses the memory backend; scans are only kept while 'labelscan serve' runs")
	}
	path := cfg.HistoryDBPath(GetRootDir())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no history found at %s. Run 'labelscan scan' first", path)
	}
	st, err := store.NewHistoryStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return st, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	st, err := openExistingHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	scans, err := st.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if historyJSON {
		output, _ := json.MarshalIndent(scans, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(scans) == 0 {
		fmt.Println("No scans recorded.")
		return nil
	}
	total, _ := st.Count()
	fmt.Printf("Showing %d of %d scans:\n\n", len(scans), total)
	for _, s := range scans {
		fmt.Printf("%s  %s  %2d/10  %-14s %s\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Report.Score, s.Report.Verdict, s.FileName)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	st, err := openExistingHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	scan, err := st.Get(args[0])
	if err != nil {
		return err
	}

	if historyJSON {
		output, _ := json.MarshalIndent(scan, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	fmt.Printf("Scanned at: %s\n", scan.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Knowledge:  %s\n\n", scan.Knowledge)
	printScan(cmd.OutOrStdout(), scan, false)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	st, err := openExistingHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted scan %s\n", args[0])
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	st, err := openExistingHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Count()
	if err != nil {
		return err
	}
	if err := st.Clear(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	fmt.Printf("Deleted %d scans\n", n)
	return nil
}
