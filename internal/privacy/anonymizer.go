package privacy

import (
	"sort"
	"strings"
)

// Result is the outcome of anonymizing a text.
type Result struct {
	Content           string     `json:"content"`
	PIITypesFound     []Category `json:"pii_types_found"`
	TotalReplacements int        `json:"total_replacements"`
}

// Detection reports whether a text needs anonymizing and which categories tripped.
type Detection struct {
	Required bool       `json:"required"`
	PIITypes []Category `json:"pii_types"`
}

// Anonymizer runs an ordered list of detectors. Overlapping matches are resolved
// by registration order: the first detector to claim a span keeps it.
type Anonymizer struct {
	detectors []Detector
}

// NewAnonymizer creates an anonymizer. With no detectors, DefaultDetectors is used.
func NewAnonymizer(detectors ...Detector) *Anonymizer {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Anonymizer{detectors: detectors}
}

// Register appends a detector with the lowest precedence.
func (a *Anonymizer) Register(d Detector) {
	a.detectors = append(a.detectors, d)
}

// Detectors returns the detectors in precedence order.
func (a *Anonymizer) Detectors() []Detector {
	out := make([]Detector, len(a.detectors))
	copy(out, a.detectors)
	return out
}

type match struct {
	start, end int
	detector   int
}

// detect returns non-overlapping matches sorted by position.
func (a *Anonymizer) detect(text string) []match {
	var kept []match
	for di, d := range a.detectors {
		for _, loc := range d.Pattern.FindAllStringSubmatchIndex(text, -1) {
			if 2*d.Group+1 >= len(loc) {
				continue
			}
			start, end := loc[2*d.Group], loc[2*d.Group+1]
			if start < 0 || end <= start {
				continue
			}
			if overlaps(kept, start, end) {
				continue
			}
			kept = append(kept, match{start: start, end: end, detector: di})
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

func overlaps(kept []match, start, end int) bool {
	for _, m := range kept {
		if start < m.end && m.start < end {
			return true
		}
	}
	return false
}

// categories lists the distinct categories of matches in detector order.
func (a *Anonymizer) categories(matches []match) []Category {
	seen := make(map[Category]bool)
	found := []Category{}
	byDetector := make([]bool, len(a.detectors))
	for _, m := range matches {
		byDetector[m.detector] = true
	}
	for di, hit := range byDetector {
		c := a.detectors[di].Category
		if hit && !seen[c] {
			seen[c] = true
			found = append(found, c)
		}
	}
	return found
}

// Anonymize replaces every detected PII span with its category placeholder.
func (a *Anonymizer) Anonymize(text string) Result {
	matches := a.detect(text)
	if len(matches) == 0 {
		return Result{Content: text, PIITypesFound: []Category{}}
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.start])
		b.WriteString(a.detectors[m.detector].Replacement)
		last = m.end
	}
	b.WriteString(text[last:])
	return Result{
		Content:           b.String(),
		PIITypesFound:     a.categories(matches),
		TotalReplacements: len(matches),
	}
}

// RequiresAnonymization reports whether any detector matches text.
func (a *Anonymizer) RequiresAnonymization(text string) Detection {
	types := a.categories(a.detect(text))
	return Detection{Required: len(types) > 0, PIITypes: types}
}

// Sanitize returns the anonymized content only.
func (a *Anonymizer) Sanitize(text string) string {
	return a.Anonymize(text).Content
}
