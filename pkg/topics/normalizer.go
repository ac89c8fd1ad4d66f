// Package topics maps free-form LLM topic strings to the canonical taxonomy.
// The taxonomy and synonym table live in an embedded, versioned data file so
// the tag set can evolve without touching code.
package topics

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

type taxonomyFile struct {
	Version  int                 `yaml:"version"`
	Taxonomy []string            `yaml:"taxonomy"`
	Synonyms map[string][]string `yaml:"synonyms"`
}

// Normalizer maps free-text topic strings to canonical tags.
type Normalizer struct {
	order  map[string]int // canonical tag → taxonomy position
	lookup map[string]string
}

// NewNormalizer loads the embedded taxonomy. It panics only on a corrupt
// embed, which is a build defect rather than a runtime condition.
func NewNormalizer() *Normalizer {
	n, err := newNormalizerFromYAML(taxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("topics: embedded taxonomy is invalid: %v", err))
	}
	return n
}

func newNormalizerFromYAML(raw []byte) (*Normalizer, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if len(file.Taxonomy) == 0 {
		return nil, fmt.Errorf("taxonomy lists no tags")
	}

	n := &Normalizer{
		order:  make(map[string]int, len(file.Taxonomy)),
		lookup: make(map[string]string),
	}
	for i, tag := range file.Taxonomy {
		n.order[tag] = i
		n.lookup[canonicalKey(tag)] = tag
		// "public_safety" should also match "public safety"
		n.lookup[canonicalKey(strings.ReplaceAll(tag, "_", " "))] = tag
	}
	for tag, syns := range file.Synonyms {
		if _, ok := n.order[tag]; !ok {
			return nil, fmt.Errorf("synonym group %q is not in the taxonomy", tag)
		}
		for _, s := range syns {
			n.lookup[canonicalKey(s)] = tag
		}
	}
	return n, nil
}

// Tags returns the canonical taxonomy in order.
func (n *Normalizer) Tags() []string {
	tags := make([]string, len(n.order))
	for tag, i := range n.order {
		tags[i] = tag
	}
	return tags
}

// IsCanonical reports whether tag is one of the taxonomy's tags.
func (n *Normalizer) IsCanonical(tag string) bool {
	_, ok := n.order[tag]
	return ok
}

// Normalize maps raw topic strings to canonical tags. Unknown strings are
// dropped rather than bucketed into a catch-all. Duplicates
// are removed; input order is preserved.
func (n *Normalizer) Normalize(raw []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range raw {
		tag, ok := n.lookup[canonicalKey(r)]
		if !ok || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// AggregateMeetingTopics rolls item-level topics up to the meeting: sorted
// by frequency across items descending, ties broken by taxonomy order.
func (n *Normalizer) AggregateMeetingTopics(itemTopics [][]string) []string {
	counts := make(map[string]int)
	for _, topics := range itemTopics {
		for _, t := range topics {
			if n.IsCanonical(t) {
				counts[t]++
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}

	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return n.order[tags[i]] < n.order[tags[j]]
	})
	return tags
}

// canonicalKey case-folds and strips punctuation so lookups tolerate the
// LLM's formatting drift.
func canonicalKey(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/':
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
