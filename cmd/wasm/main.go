//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"

	"labelscan/internal/adapter/knowledge"
)

var (
	kb      *knowledge.KnowledgeBase
	matcher *knowledge.Matcher
)

func init() {
	var err error
	kb, err = knowledge.Load(nil)
	if err != nil {
		panic(err)
	}
	matcher = knowledge.NewMatcher(kb.Index)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("labelscanLoad", js.FuncOf(loadKnowledge))
	js.Global().Set("labelscanMatch", js.FuncOf(matchOne))
	js.Global().Set("labelscanRetrieve", js.FuncOf(retrieve))
	js.Global().Set("labelscanStats", js.FuncOf(getStats))

	<-c
}

// loadKnowledge replaces the bundled knowledge base with a JSON array of
// records.
func loadKnowledge(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: labelscanLoad(recordsJSON, [threshold])")
	}

	records, err := knowledge.Decode([]byte(args[0].String()), ".json")
	if err != nil {
		return makeError("decode failed: " + err.Error())
	}
	idx, err := knowledge.BuildIndex(records)
	if err != nil {
		return makeError("invalid knowledge base: " + err.Error())
	}

	threshold := knowledge.DefaultThreshold
	if len(args) > 1 {
		threshold = args[1].Float()
	}

	kb = &knowledge.KnowledgeBase{
		Index:       idx,
		Records:     records,
		Sources:     []string{"js"},
		Fingerprint: knowledge.Fingerprint(records),
	}
	matcher = knowledge.NewMatcher(idx, knowledge.WithThreshold(threshold))

	return makeResult(map[string]interface{}{
		"success": true,
		"records": len(records),
	})
}

func matchOne(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: labelscanMatch(name)")
	}

	res := matcher.MatchOne(args[0].String())
	out := map[string]interface{}{
		"candidate": res.Candidate,
		"tier":      res.Tier.String(),
		"score":     res.Score,
	}
	if res.Record != nil {
		out["record"] = res.Record
	}
	return makeResult(out)
}

func retrieve(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: labelscanRetrieve(namesJSON)")
	}

	var names []string
	if err := json.Unmarshal([]byte(args[0].String()), &names); err != nil {
		return makeError("expected a JSON array of names: " + err.Error())
	}

	r := matcher.Retrieve(names)
	return makeResult(map[string]interface{}{
		"matched":   r.Matched,
		"unmatched": r.Unmatched,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	categories := make(map[string]int)
	for _, r := range kb.Index.Records() {
		categories[r.Category]++
	}
	return makeResult(map[string]interface{}{
		"records":     len(kb.Records),
		"names":       kb.Index.Len(),
		"fingerprint": kb.Fingerprint,
		"threshold":   matcher.Threshold(),
		"categories":  categories,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
