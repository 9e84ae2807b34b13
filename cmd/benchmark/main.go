package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"labelscan/config"
	"labelscan/internal/adapter/knowledge"
	"labelscan/internal/domain"
)

// matchCase is one labelled candidate. An empty Want means the candidate
// should stay unmatched.
type matchCase struct {
	Candidate string
	Want      string
}

type outcome struct {
	correct, wrong, missed, falseHits int
	tiers                             map[domain.MatchTier]int
	elapsed                           time.Duration
}

func main() {
	dir := flag.String("dir", ".", "Directory holding labelscan.yaml")
	casesPath := flag.String("cases", "", "TSV of candidate<TAB>expected id ('-' for no match); default derives cases from the knowledge base")
	thresholdList := flag.String("thresholds", "0.5,0.65,0.8", "Comma-separated similarity thresholds")
	flag.Parse()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	sources := make([]string, len(cfg.Knowledge.Sources))
	for i, s := range cfg.Knowledge.Sources {
		if !filepath.IsAbs(s) {
			s = filepath.Join(*dir, s)
		}
		sources[i] = s
	}
	kb, err := knowledge.Load(sources)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading knowledge base: %v\n", err)
		os.Exit(1)
	}

	thresholds, err := parseThresholds(*thresholdList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid thresholds: %v\n", err)
		os.Exit(1)
	}

	var cases []matchCase
	if *casesPath != "" {
		cases, err = readCases(*casesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading cases: %v\n", err)
			os.Exit(1)
		}
	} else {
		cases = deriveCases(kb.Index.Records())
	}

	fmt.Println("INGREDIENT MATCHER BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Knowledge base: %d records (%s)\n", len(kb.Records), kb.Fingerprint)
	fmt.Printf("Cases:          %d\n\n", len(cases))

	fmt.Printf("%-12s %-9s %8s %6s %6s %6s %8s %10s\n",
		"scorer", "threshold", "accuracy", "wrong", "missed", "false", "fuzzy", "per match")
	fmt.Println(strings.Repeat("-", 70))

	for _, name := range []string{"ratio", "levenshtein"} {
		scorer, _ := knowledge.ScorerByName(name)
		for _, threshold := range thresholds {
			m := knowledge.NewMatcher(kb.Index, knowledge.WithThreshold(threshold), knowledge.WithScorer(scorer))
			o := run(m, cases)
			accuracy := float64(o.correct) / float64(len(cases))
			perMatch := o.elapsed / time.Duration(max(len(cases), 1))
			fmt.Printf("%-12s %-9.2f %7.1f%% %6d %6d %6d %8d %10s\n",
				name, threshold, accuracy*100, o.wrong, o.missed, o.falseHits, o.tiers[domain.TierSimilarity], perMatch)
		}
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("wrong:  matched a different record")
	fmt.Println("missed: expected a record, got none")
	fmt.Println("false:  expected no match, got one")
}

func run(m *knowledge.Matcher, cases []matchCase) outcome {
	o := outcome{tiers: make(map[domain.MatchTier]int)}
	start := time.Now()
	for _, c := range cases {
		res := m.MatchOne(c.Candidate)
		o.tiers[res.Tier]++
		switch {
		case c.Want == "" && !res.Matched():
			o.correct++
		case c.Want == "":
			o.falseHits++
		case !res.Matched():
			o.missed++
		case res.Record.ID == c.Want:
			o.correct++
		default:
			o.wrong++
		}
	}
	o.elapsed = time.Since(start)
	return o
}

// deriveCases builds labelled variants of every record name: the name in
// upper case, with an additive code suffix, and with one letter dropped,
// plus a few names that should never match.
func deriveCases(records []domain.IngredientRecord) []matchCase {
	var cases []matchCase
	for _, r := range records {
		cases = append(cases,
			matchCase{Candidate: strings.ToUpper(r.Name), Want: r.ID},
			matchCase{Candidate: r.Name + " (E000)", Want: r.ID},
		)
		runes := []rune(r.Name)
		if len(runes) > 5 {
			mid := len(runes) / 2
			typo := string(runes[:mid]) + string(runes[mid+1:])
			cases = append(cases, matchCase{Candidate: typo, Want: r.ID})
		}
	}
	for _, none := range []string{"Unobtainium", "Moon Dust", "Xylophone", "Qwerty"} {
		cases = append(cases, matchCase{Candidate: none})
	}
	return cases
}

func readCases(path string) ([]matchCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cases []matchCase
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		candidate, want, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: expected candidate<TAB>id", line)
		}
		want = strings.TrimSpace(want)
		if want == "-" {
			want = ""
		}
		cases = append(cases, matchCase{Candidate: candidate, Want: want})
	}
	return cases, scanner.Err()
}

func parseThresholds(list string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%g is outside [0,1]", v)
		}
		out = append(out, v)
	}
	return out, nil
}
