// Package normalize implements C1, the text normalizer: turning scraped
// "Artist - Title (Version)" strings into canonical fields.
//
// The pipeline is deterministic and ordered (spec.md §4.1): Unicode
// decomposition, version extraction, artist/title split, collaborator
// standardization, case/punctuation folding, whitespace collapse. Every
// stage is pure so the whole pipeline is idempotent and side-effect free.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Track is the result of normalizing a full "Artist - Title (Version)" string.
type Track struct {
	Artist         string
	Title          string
	Version        string
	RemixType      string
	IsRemix        bool
	NormalizedFull string
}

// TitleOnly is the result of normalizing a bare title string.
type TitleOnly struct {
	Title     string
	Version   string
	IsRemix   bool
}

// versionPattern is one entry in the ordered version-extraction table.
// The first pattern to match wins (spec.md §4.1b).
type versionPattern struct {
	re        *regexp.Regexp
	remixType string
	isRemix   bool
}

// versionPatterns is deliberately ordered: more specific patterns (named
// remix types) come before the generic "X Remix" catch-all so that, e.g.,
// "Extended Mix" isn't swallowed by a looser rule.
var versionPatterns = []versionPattern{
	{regexp.MustCompile(`(?i)\(([^)]*\bvip\b[^)]*)\)`), "vip", true},
	{regexp.MustCompile(`(?i)\(([^)]*\boriginal mix\b[^)]*)\)`), "original_mix", false},
	{regexp.MustCompile(`(?i)\(([^)]*\bextended mix\b[^)]*)\)`), "extended_mix", false},
	{regexp.MustCompile(`(?i)\(([^)]*\bclub mix\b[^)]*)\)`), "club_mix", false},
	{regexp.MustCompile(`(?i)\(([^)]*\bradio edit\b[^)]*)\)`), "radio_edit", false},
	{regexp.MustCompile(`(?i)\(([^)]*\bdub\b[^)]*)\)`), "dub", false},
	{regexp.MustCompile(`(?i)\(([^)]*\bedit\b[^)]*)\)`), "edit", false},
	{regexp.MustCompile(`(?i)\(([^)]*\bremix\b[^)]*)\)`), "remix", true},
	{regexp.MustCompile(`(?i)-\s*([\w .&']*\bremix)\s*$`), "remix", true},
}

// separators each split artist from title; the string is split once, at
// whichever separator occurs earliest in it (spec.md §4.1c).
var separators = []string{" - ", " – ", " — ", ": ", " | "}

// collaboratorReplacements standardizes the ways multiple artists are
// joined, applied to the artist field only (spec.md §4.1d).
var collaboratorReplacements = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?i)\bfeat\.?\b|\bft\.?\b`), "featuring"},
	{regexp.MustCompile(`(?i)\bvs\.?\b`), "versus"},
	{regexp.MustCompile(`\s*&\s*`), " and "},
	{regexp.MustCompile(`\s*,\s*`), " and "},
	{regexp.MustCompile(`(?i)\s+x\s+`), " and "},
}

var (
	punctRE     = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// stripCombiningMarks runs Unicode NFD decomposition and drops combining
// marks, folding accented characters to their base letters (spec.md §4.1a).
func stripCombiningMarks(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// extractVersion scans title against the ordered version pattern table,
// removing the first match and reporting what it found.
func extractVersion(title string) (rest, version, remixType string, isRemix bool) {
	for _, vp := range versionPatterns {
		loc := vp.re.FindStringSubmatchIndex(title)
		if loc == nil {
			continue
		}
		// Submatch 1 is the captured version text (sans enclosing parens/dash).
		version = strings.TrimSpace(title[loc[2]:loc[3]])
		rest = strings.TrimSpace(title[:loc[0]] + title[loc[1]:])
		return rest, version, vp.remixType, vp.isRemix
	}
	return title, "", "", false
}

// foldAndCollapse lowercases s, strips punctuation (preserving intra-word
// hyphens), and collapses whitespace (spec.md §4.1e–f).
func foldAndCollapse(s string) string {
	s = strings.ToLower(s)
	s = punctRE.ReplaceAllString(s, " ")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// standardizeCollaborators rewrites collaborator separators in an artist
// string to their canonical spelled-out form.
func standardizeCollaborators(artist string) string {
	for _, r := range collaboratorReplacements {
		artist = r.re.ReplaceAllString(artist, r.with)
	}
	return artist
}

// splitArtistTitle splits on the first separator that appears, trying
// separators in priority order and picking whichever occurs earliest in
// the string if more than one is present.
func splitArtistTitle(s string) (artist, title string) {
	bestIdx := -1
	bestSepLen := 0
	for _, sep := range separators {
		if idx := strings.Index(s, sep); idx != -1 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				bestSepLen = len(sep)
			}
		}
	}
	if bestIdx == -1 {
		return "", s
	}
	return s[:bestIdx], s[bestIdx+bestSepLen:]
}

// NormalizeTrackString runs the full C1 pipeline over a scraped
// "Artist - Title (Version)" string. It never errors: malformed or empty
// input yields empty fields (spec.md §4.1 contract, §8 boundary property).
func NormalizeTrackString(s string) Track {
	s = stripCombiningMarks(s)

	withoutVersion, version, remixType, isRemix := extractVersion(s)
	rawArtist, rest := splitArtistTitle(withoutVersion)

	artist := standardizeCollaborators(rawArtist)

	foldedArtist := foldAndCollapse(artist)
	foldedTitle := foldAndCollapse(rest)

	full := foldedTitle
	if foldedArtist != "" {
		full = foldedArtist + " " + foldedTitle
	}
	full = whitespaceRE.ReplaceAllString(strings.TrimSpace(full), " ")

	return Track{
		Artist:         foldedArtist,
		Title:          foldedTitle,
		Version:        foldAndCollapse(version),
		RemixType:      remixType,
		IsRemix:        isRemix,
		NormalizedFull: full,
	}
}

// NormalizeArtist folds a bare artist string (no splitting, no version
// extraction) into its canonical form, standardizing collaborators first.
func NormalizeArtist(s string) string {
	s = stripCombiningMarks(s)
	s = standardizeCollaborators(s)
	return foldAndCollapse(s)
}

// NormalizeTitleOnly folds a bare title string, optionally extracting a
// version/remix marker.
func NormalizeTitleOnly(s string, extractVersionFlag bool) TitleOnly {
	s = stripCombiningMarks(s)
	if !extractVersionFlag {
		return TitleOnly{Title: foldAndCollapse(s)}
	}
	rest, version, _, isRemix := extractVersion(s)
	return TitleOnly{
		Title:   foldAndCollapse(rest),
		Version: foldAndCollapse(version),
		IsRemix: isRemix,
	}
}
