package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/arbovm/levenshtein"
)

var errNoJSONObject = errors.New("response contains no JSON object")

// decodeObject unmarshals the first JSON object embedded in text. Generated
// answers often wrap the object in prose or code fences.
func decodeObject(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return errNoJSONObject
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode generated JSON: %w", err)
	}
	return nil
}

// dedupe drops blank items and items that are near-duplicates of an earlier
// one. Two items are near-duplicates when their edit distance is within a
// fifth of the shorter length (at least 1).
func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	norm := make([]string, 0, len(items))

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)

		duplicate := false
		for _, seen := range norm {
			if levenshtein.Distance(key, seen) <= similarityBudget(key, seen) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		out = append(out, item)
		norm = append(norm, key)
	}
	return out
}

func similarityBudget(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	budget := n / 5
	if budget < 1 {
		budget = 1
	}
	return budget
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("generated %s is empty", field)
	}
	return nil
}
