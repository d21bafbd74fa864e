// Package fuzzy implements C3, the fuzzy matcher: a cascade of
// string-similarity stages that scores a scraped (artist, title) pair
// against a list of candidate records.
//
// No teacher file performs fuzzy string matching (derat-nup matches
// songs by exact SHA1), so the cascade shape is grounded on
// _examples/Ambrevar-demlo/fuzzy.go's idea of a single normalized
// distance ratio, generalized into the five-stage cascade spec.md §4.3
// requires and backed by real similarity libraries rather than
// Ambrevar's vendored Damerau-Levenshtein package.
package fuzzy

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/corvyn/setgraph/internal/normalize"
)

// Stage identifies which cascade tier produced a match.
type Stage string

const (
	StageExact       Stage = "exact"
	StageHighFuzzy   Stage = "high_fuzzy"
	StageTokenSet    Stage = "token_set"
	StageJaroWinkler Stage = "jaro_winkler"
	StageLevenshtein Stage = "levenshtein"
)

// stageOrder is both evaluation order and tie-break priority.
var stageOrder = []Stage{StageExact, StageHighFuzzy, StageTokenSet, StageJaroWinkler, StageLevenshtein}

var stageThreshold = map[Stage]float64{
	StageExact:       1.0,
	StageHighFuzzy:   0.95,
	StageTokenSet:    0.85,
	StageJaroWinkler: 0.90,
	StageLevenshtein: 0.85,
}

// GlobalMinAcceptance is the floor below which no match is ever returned,
// regardless of which stage produced it (spec.md §4.3, §9 open question:
// implementers must not silently accept sub-threshold matches).
const GlobalMinAcceptance = 0.80

// Candidate is a record being matched against a scraped (artist, title).
type Candidate struct {
	ID      string
	Artist  string
	Title   string
	Aliases []string // used only by MatchArtist
}

// Result is the outcome of matching against one candidate.
type Result struct {
	Candidate  Candidate
	Confidence float64
	Stage      Stage
}

// ratio returns a [0,1] similarity derived from edit distance, 1 for two
// empty strings.
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// tokenize splits s on non-alphanumeric runes into a lowercase token set.
func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// tokenSetRatio is a token_set_ratio-equivalent comparison: unlike
// plain Jaccard (which penalizes a candidate that is a strict token
// subset through its union denominator), it compares the shared-token
// string against each side's full token string, so a query that's the
// candidate plus extra words still scores near 1.0. Mirrors
// fuzzywuzzy's token_set_ratio (sorted intersection vs. sorted
// intersection+difference, best of the three pairwise ratios).
func tokenSetRatio(a, b string) float64 {
	sa, sb := tokenize(a), tokenize(b)
	var inter, onlyA, onlyB []string
	for t := range sa {
		if sb[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range sb {
		if !sa[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(inter, " ")
	combined1 := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combined2 := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	best := ratio(sect, combined1)
	if r := ratio(sect, combined2); r > best {
		best = r
	}
	if r := ratio(combined1, combined2); r > best {
		best = r
	}
	return best
}

// scoreStage computes a candidate's similarity score for one stage,
// against a (possibly pre-normalized) query artist/title, returning ok=false
// if the stage isn't applicable (e.g. a missing similarity library; none of
// setgraph's stages currently have one, but the signature keeps that
// graceful-skip path available per spec.md §4.3).
func scoreStage(stage Stage, qArtist, qTitle, cArtist, cTitle string) (score float64, ok bool) {
	switch stage {
	case StageExact:
		na, nc := normalize.NormalizeArtist(qArtist), normalize.NormalizeArtist(cArtist)
		nt, nct := normalize.NormalizeTitleOnly(qTitle, false).Title, normalize.NormalizeTitleOnly(cTitle, false).Title
		if na == nc && nt == nct {
			return 1.0, true
		}
		return 0.0, true
	case StageHighFuzzy:
		return 0.6*ratio(qArtist, cArtist) + 0.4*ratio(qTitle, cTitle), true
	case StageTokenSet:
		return tokenSetRatio(qArtist+" "+qTitle, cArtist+" "+cTitle), true
	case StageJaroWinkler:
		jw := func(a, b string) float64 { return smetrics.JaroWinkler(a, b, 0.7, 4) }
		return 0.6*jw(qArtist, cArtist) + 0.4*jw(qTitle, cTitle), true
	case StageLevenshtein:
		return 0.6*ratio(qArtist, cArtist) + 0.4*ratio(qTitle, cTitle), true
	default:
		return 0.0, false
	}
}

// Match runs the cascade for a scraped (artist, title) against candidates
// and returns the best match at or above GlobalMinAcceptance, or ok=false
// if nothing qualifies.
func Match(artist, title string, candidates []Candidate) (best Result, ok bool) {
	bestScore := -1.0
	for _, stage := range stageOrder {
		threshold := stageThreshold[stage]
		var stageBest Result
		stageBestScore := -1.0
		for _, c := range candidates {
			score, applicable := scoreStage(stage, artist, title, c.Artist, c.Title)
			if !applicable || score < threshold {
				continue
			}
			if score > stageBestScore {
				stageBestScore = score
				stageBest = Result{Candidate: c, Confidence: score, Stage: stage}
			}
		}
		if stageBestScore > bestScore {
			bestScore = stageBestScore
			best = stageBest
			ok = true
		}
		// An exact match is the maximum possible score: no later stage can
		// beat it, so short-circuit. Every other stage keeps evaluating so a
		// later, higher-scoring stage can still win (spec.md §4.3).
		if stage == StageExact && bestScore == 1.0 {
			break
		}
	}
	if !ok || bestScore < GlobalMinAcceptance {
		return Result{}, false
	}
	return best, true
}

// TitleSimilarity returns a [0,1] edit-distance-based similarity between
// two normalized title strings, for callers outside this package that
// need a single scalar comparison (C10's mashup-component and
// label-map lookups) rather than the full cascade.
func TitleSimilarity(a, b string) float64 { return ratio(a, b) }

// ArtistCandidate is a candidate artist record for MatchArtist.
type ArtistCandidate struct {
	ID      string
	Name    string
	Aliases []string
}

// MatchArtistMinAcceptance is C3' artist-only matcher's acceptance floor.
const MatchArtistMinAcceptance = 0.85

// MatchArtist scores a scraped artist name against candidates' canonical
// names and aliases, returning the max similarity across both.
func MatchArtist(name string, candidates []ArtistCandidate) (best ArtistCandidate, confidence float64, ok bool) {
	bestScore := -1.0
	for _, c := range candidates {
		score := ratio(normalize.NormalizeArtist(name), normalize.NormalizeArtist(c.Name))
		for _, alias := range c.Aliases {
			if s := ratio(normalize.NormalizeArtist(name), normalize.NormalizeArtist(alias)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore < MatchArtistMinAcceptance {
		return ArtistCandidate{}, 0, false
	}
	return best, bestScore, true
}
