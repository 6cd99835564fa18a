package deploy

import "strings"

// Rewriter replaces artifact placeholders in an assembled manifest document
// with concrete image references. It is an interface so the textual
// find/replace scheme can later give way to a structured rewrite (parse,
// patch, re-serialize) without touching the reconciliation algorithm.
type Rewriter interface {
	Rewrite(doc string, replacements map[string]string) string
}

// TextualRewriter substitutes every occurrence of each placeholder string.
// It assumes placeholders (artifact output paths) appear verbatim and do not
// overlap; longer placeholders are applied first so a path is never clobbered
// by a prefix of itself.
type TextualRewriter struct{}

func (TextualRewriter) Rewrite(doc string, replacements map[string]string) string {
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, k)
	}
	// Longest first, ties broken lexically for determinism.
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if len(keys[j]) > len(keys[i]) || (len(keys[j]) == len(keys[i]) && keys[j] < keys[i]) {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	for _, k := range keys {
		doc = strings.ReplaceAll(doc, k, replacements[k])
	}
	return doc
}
