package memory

import (
	"strings"

	"github.com/tsawler/prose/v3"
)

// namedEntities runs local NER over the fact text and merges the result
// with entities the extractor model already named. Order is preserved and
// duplicates are dropped case-insensitively.
func namedEntities(text string, fromModel []string) []string {
	var merged []string
	seen := make(map[string]struct{})

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, name)
	}

	for _, name := range fromModel {
		add(name)
	}

	if doc, err := prose.NewDocument(text); err == nil {
		for _, ent := range doc.Entities() {
			add(ent.Text)
		}
	}

	return merged
}
