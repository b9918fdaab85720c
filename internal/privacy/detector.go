// Package privacy detects and redacts personally identifiable information before
// text is embedded by a remote provider or persisted.
package privacy

import (
	"regexp"
	"strings"
)

// Category is a kind of PII. Its placeholder replaces every detected span.
type Category string

const (
	CategoryName    Category = "name"
	CategoryEmail   Category = "email"
	CategoryPhone   Category = "phone"
	CategoryID      Category = "id"
	CategoryAddress Category = "address"
)

// Placeholder returns the bracketed token used in anonymized text, e.g. [EMAIL].
func (c Category) Placeholder() string {
	return "[" + strings.ToUpper(string(c)) + "]"
}

// Detector maps a pattern to a PII category. When Group is non-zero only that
// submatch is replaced, so surrounding context such as "my name is" survives.
type Detector struct {
	Category    Category
	Locale      string
	Pattern     *regexp.Regexp
	Replacement string
	Group       int
}

// NewDetector builds a detector whose replacement is the category placeholder.
func NewDetector(category Category, locale, pattern string) Detector {
	return Detector{
		Category:    category,
		Locale:      locale,
		Pattern:     regexp.MustCompile(pattern),
		Replacement: category.Placeholder(),
	}
}

func (d Detector) withGroup(g int) Detector {
	d.Group = g
	return d
}

// DefaultDetectors returns the built-in detectors in precedence order.
//
// Order matters: when spans overlap, the detector registered first keeps its
// match and later ones are discarded. Emails go first so their local part is
// never taken for a name; identity numbers precede phones so that an SSN or a
// French NIR is reported as [ID]; addresses precede names so that street names
// such as "Via Roma" are not split.
func DefaultDetectors() []Detector {
	return []Detector{
		NewDetector(CategoryEmail, "", `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),

		NewDetector(CategoryID, "it", `(?i)\b[A-Z]{6}\d{2}[A-EHLMPR-T]\d{2}[A-Z]\d{3}[A-Z]\b`),
		NewDetector(CategoryID, "it", `\bIT\d{2}[A-Z]\d{10}[0-9A-Z]{12}\b`),
		NewDetector(CategoryID, "fr", `\b[12]\s?\d{2}\s?(?:0[1-9]|1[0-2])\s?(?:\d{2}|2[AB])\s?\d{3}\s?\d{3}\s?\d{2}\b`),
		NewDetector(CategoryID, "es", `\b[XYZ]?\d{7,8}-?[A-HJ-NP-TV-Z]\b`),
		NewDetector(CategoryID, "us", `\b\d{3}-\d{2}-\d{4}\b`),

		NewDetector(CategoryPhone, "", `\+\d{1,3}(?:[\s.-]?\d{2,4}){2,5}`),
		NewDetector(CategoryPhone, "it", `\b3\d{2}[\s.-]?\d{6,7}\b`),
		NewDetector(CategoryPhone, "de", `\b0\d{1,4}[\s/-]?\d{5,9}\b`),
		NewDetector(CategoryPhone, "us", `\(?\b\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`),

		NewDetector(CategoryAddress, "it", `\b(?:Via|Viale|Piazza|Piazzale|Corso|Largo|Vicolo|Calle|Avenida|Plaza|Paseo|Carrer)\s+(?:[\p{L}'’.]+,?\s+){1,4}?\d{1,5}[A-Za-z]?\b`),
		NewDetector(CategoryAddress, "fr", `(?i)\b\d{1,4}(?:\s?(?:bis|ter))?,?\s+(?:rue|avenue|boulevard|bd|place|allée|chemin|impasse|quai)\s+(?:[\p{L}'’-]+\s?){1,4}`),
		NewDetector(CategoryAddress, "de", `\b\p{Lu}\p{L}*(?:straße|strasse|weg|platz|allee|gasse)\s+\d{1,4}[a-z]?\b`),
		NewDetector(CategoryAddress, "us", `\b\d{1,5}\s+(?:\p{Lu}\p{Ll}+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way)\b\.?`),
		NewDetector(CategoryAddress, "uk", `\b[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}\b`),

		NewDetector(CategoryName, "", `(?i:\b(?:my name is|i'm|i’m|i am|mi chiamo|il mio nome è|sono|je m'appelle|je m’appelle|je suis|ich heiße|ich heisse|mein name ist|ich bin|me llamo|mi nombre es|soy))\s+(\p{Lu}[\p{Ll}'’-]+(?:\s+\p{Lu}[\p{Ll}'’-]+)?)`).withGroup(1),
		NewDetector(CategoryName, "", `\b(?:`+strings.Join(firstNames, "|")+`)\b(?:\s+\p{Lu}[\p{Ll}'’-]+)?`),
	}
}
