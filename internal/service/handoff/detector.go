// Package handoff decides when a conversation needs a person and moves it there.
package handoff

import "strings"

// Detector matches customer text against an ordered keyword list.
type Detector struct {
	keywords []string
}

// NewDetector lower-cases and keeps the non-empty keywords in order.
func NewDetector(keywords []string) *Detector {
	d := &Detector{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			d.keywords = append(d.keywords, k)
		}
	}
	return d
}

// Match returns the first keyword contained in text.
func (d *Detector) Match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, k := range d.keywords {
		if strings.Contains(lowered, k) {
			return k, true
		}
	}
	return "", false
}

// Keywords returns a copy of the configured list.
func (d *Detector) Keywords() []string {
	return append([]string(nil), d.keywords...)
}
