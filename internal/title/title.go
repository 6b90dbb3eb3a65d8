// Package title turns raw e-book filenames into search titles and archive
// identifiers, and compares titles for equivalence.
package title

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// Separator splits "Author - Title" style names.
	Separator = " - "

	// MaxIdentifierLength is where the archive truncates generated identifiers.
	MaxIdentifierLength = 80

	// SimilarWordRatio is the share of query words that must appear in a
	// candidate title for the word-overlap test to pass.
	SimilarWordRatio = 0.8
)

// TechnicalWords are process markers dropped when they form the final
// segment of a name.
var TechnicalWords = []string{
	"scan", "ctrl", "retail", `cop\d+`, "vp", "draft", "final", "ocr",
	"edit", "edited", "rev", "revised", "proof", "beta", "alpha", "test",
	"demo", "sample", "preview", "full", "complete", "fix", "fixed", "corrected",
}

var technicalAlt = strings.Join(TechnicalWords, "|")

// FileExtensions are the suffixes Normalize treats as file extensions.
// Any other dotted tail is part of the title ("Dr.Who", "J.R.R").
var FileExtensions = []string{
	"pdf", "epub", "mobi", "djvu", "djv", "docx", "doc", "lit", "rtf", "txt",
	"azw", "azw3", "fb2", "prc", "pdb", "lrf", "chm", "odt", "cbz", "cbr",
	"jpg", "jpeg", "png", "zip", "rar", "7z", "htm", "html",
}

var (
	extRe        = regexp.MustCompile(`(?i)\.(?:` + strings.Join(FileExtensions, "|") + `)$`)
	dateSuffixRe = regexp.MustCompile(`[_-]\d{6,8}$`)
	parenRe      = regexp.MustCompile(`\s*\([^()]*\)`)
	bracketRe    = regexp.MustCompile(`\s*\[[^\[\]]*\]`)
	versionRe    = regexp.MustCompile(`(?:\s*[-–]\s*|\s+|^)[vV]\.?\s*\d+(?:[.\-]\d+)*\.?(?:\s+[A-Z]{1,6})?(?:\s*[-–]\s*\d+)?$`)
	enumRe       = regexp.MustCompile(`^\d+\.\s*`)
	technicalRe  = regexp.MustCompile(`(?i)^(?:` + technicalAlt + `)(?:[\s_,]+(?:` + technicalAlt + `))*$`)
	dashSepRe    = regexp.MustCompile(`\s+[–—]\s+`)
	emptySegRe   = regexp.MustCompile(`\s+-(?:\s+-)+\s+`)
	trailDashRe  = regexp.MustCompile(`\s*[-–]\s*$`)
	leadDashRe   = regexp.MustCompile(`^\s*[-–]\s+`)
	spaceRe      = regexp.MustCompile(`\s+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9\s]`)
	nonLetterRe  = regexp.MustCompile(`[^a-zA-Z\s]`)
	nonSlugRe    = regexp.MustCompile(`[^a-z0-9.]+`)
	dashRunRe    = regexp.MustCompile(`-{2,}`)
	matchKeyRe   = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

	idDateSuffixRe = regexp.MustCompile(`_(?:\d{6}|\d{8})$`)
	idDupRemainRe  = regexp.MustCompile(`(?i)^(?:_\d{6}|_\d{8}|[-_]v\d+|[-_]copy\d*|[-_]duplicate\d*|[-_]\d+)$`)
)

// Normalize converts a filename into a search-friendly title. It never
// fails; the result may be empty. Normalize(Normalize(x)) == Normalize(x).
func Normalize(filename string) string {
	name := strings.TrimSpace(filename)
	for {
		next := clean(name)
		if next == name {
			return next
		}
		name = next
	}
}

func clean(name string) string {
	name = extRe.ReplaceAllString(name, "")
	name = dateSuffixRe.ReplaceAllString(name, "")
	name = parenRe.ReplaceAllString(name, "")
	name = bracketRe.ReplaceAllString(name, "")
	name = versionRe.ReplaceAllString(name, "")
	name = dashSepRe.ReplaceAllString(name, Separator)
	name = emptySegRe.ReplaceAllString(name, Separator)

	if i := strings.LastIndex(name, Separator); i >= 0 {
		if technicalRe.MatchString(strings.TrimSpace(name[i+len(Separator):])) {
			name = name[:i]
		}
	}
	if i := strings.LastIndex(name, Separator); i >= 0 {
		name = name[:i] + Separator + enumRe.ReplaceAllString(name[i+len(Separator):], "")
	}

	name = spaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = trailDashRe.ReplaceAllString(name, "")
	name = leadDashRe.ReplaceAllString(name, "")
	return name
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripDiacritics removes combining marks, so "Poartă" becomes "Poarta".
func StripDiacritics(s string) string {
	out, _, err := transform.String(foldMarks, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lowercases s, drops diacritics and punctuation, and collapses whitespace.
func Fold(s string) string {
	s = strings.ToLower(StripDiacritics(s))
	s = nonAlnumRe.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Similar reports whether candidate names the same work as query.
// The word-overlap test is asymmetric: it measures how much of query is
// covered by candidate.
func Similar(query, candidate string) bool {
	q, c := Fold(query), Fold(candidate)
	if q == "" || c == "" {
		a, b := strings.TrimSpace(query), strings.TrimSpace(candidate)
		return a != "" && strings.EqualFold(a, b)
	}

	qs, cs := strings.ReplaceAll(q, " ", ""), strings.ReplaceAll(c, " ", "")
	if qs == cs {
		return true
	}
	if len(qs) > 3 && len(cs) > 3 && (strings.Contains(cs, qs) || strings.Contains(qs, cs)) {
		return true
	}

	// A single shared word (an author's first name, say) is no evidence.
	qw, cw := significantWords(q), significantWords(c)
	if len(qw) < 2 || len(cw) == 0 {
		return false
	}
	common := 0
	for w := range qw {
		if cw[w] {
			common++
		}
	}
	return float64(common)/float64(len(qw)) >= SimilarWordRatio
}

func significantWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) > 2 {
			words[w] = true
		}
	}
	return words
}

// SortKey orders directory names alphabetically while ignoring digits and
// punctuation. Numbered names sort by their letters alone.
func SortKey(name string) string {
	key := nonLetterRe.ReplaceAllString(strings.ToLower(name), "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(key, " "))
}

// Identifier derives the archive item identifier the host would generate
// for title.
func Identifier(title string) string {
	id := strings.ToLower(StripDiacritics(title))
	id = nonSlugRe.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-")
	if len(id) > MaxIdentifierLength {
		id = strings.TrimRight(id[:MaxIdentifierLength], "-")
	}
	return id
}

// IdentifierVariants returns the identifier for title plus alternates
// the host has been seen to produce, without duplicates.
func IdentifierVariants(title string) []string {
	base := Identifier(title)
	if base == "" {
		return nil
	}
	variants := []string{base}
	if plain := strings.Trim(strings.ReplaceAll(base, ".", ""), "-"); plain != base && plain != "" {
		plain = dashRunRe.ReplaceAllString(plain, "-")
		variants = append(variants, plain)
	}
	return variants
}

// HasDateSuffix reports whether identifier ends with a _YYYYMM or
// _YYYYMMDD resubmission marker.
func HasDateSuffix(identifier string) bool {
	return idDateSuffixRe.MatchString(identifier)
}

// IsDuplicateOf reports whether identifier is base with a resubmission
// suffix appended.
func IsDuplicateOf(identifier, base string) bool {
	if base == "" || len(identifier) <= len(base) {
		return false
	}
	if !strings.EqualFold(identifier[:len(base)], base) {
		return false
	}
	return idDupRemainRe.MatchString(identifier[len(base):])
}

// MatchKey flattens a filename for fuzzy comparison of upload failures
// with local files.
func MatchKey(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name = matchKeyRe.ReplaceAllString(strings.ToLower(name), " ")
	name = strings.TrimSpace(spaceRe.ReplaceAllString(name, " "))
	return strings.ReplaceAll(name, " ", "-")
}
