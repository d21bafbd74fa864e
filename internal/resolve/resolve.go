// Package resolve implements C10, the multi-tier artist resolver: for
// tracks whose artist is missing or a placeholder like "Unknown" or
// "Various Artists", it tries internal knowledge first, then external
// lookups, and feeds any externally sourced fact back into internal
// knowledge so future attempts need the external tier less often.
package resolve

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/corvyn/setgraph/internal/fuzzy"
	"github.com/corvyn/setgraph/internal/model"
)

// Stage names the state-machine step a resolution attempt reached.
type Stage string

const (
	StageParse         Stage = "parse"
	StageTier1Mashup   Stage = "tier1_mashup"
	StageTier1LabelMap Stage = "tier1_label_map"
	StageTier2_1001TL  Stage = "tier2_1001tl"
	StageTier2Discogs  Stage = "tier2_discogs"
	StageTier2MixesDB  Stage = "tier2_mixesdb"
	StageFail          Stage = "fail"
)

// mashupComponentMinSimilarity and labelMapTitleMinSimilarity are the
// two internal-tier thresholds from spec.md §4.10.
const (
	mashupComponentMinSimilarity = 0.7
	labelMapTitleMinSimilarity   = 0.6
	labelMapTopN                 = 5
)

var (
	labelBracketRE = regexp.MustCompile(`\[([^\]]+)\]\s*$`)
	mashupSplitRE  = regexp.MustCompile(`(?i)\s+vs\.?\s+`)
	mixSuffixRE    = regexp.MustCompile(`(?i)\s*\(mix\)\s*$`)
)

// Result is the outcome of one resolution attempt.
type Result struct {
	ArtistName string
	Confidence float64
	Stage      Stage
}

// TitleMatch is a known silver track returned by a title-similarity search.
type TitleMatch struct {
	TrackID    uuid.UUID
	ArtistName string
	Title      string
}

// TitleIndex searches known silver tracks by normalized title.
type TitleIndex interface {
	FindSimilarTitles(ctx context.Context, normTitle string, minSimilarity float64) ([]TitleMatch, error)
}

// LabelArtistCount is one (label, artist, track_count) triple from the
// label-to-artist map, restricted to labels with at least two
// artist-linked tracks per spec.md §4.10.
type LabelArtistCount struct {
	Label      string
	Artist     string
	TrackCount int
}

// LabelMapStore loads the full label-artist association table, which
// the resolver caches and sorts in memory.
type LabelMapStore interface {
	LoadLabelArtistCounts(ctx context.Context) ([]LabelArtistCount, error)
}

// ArtistTitleLookup returns the known titles already attributed to an
// artist, used to check whether a candidate artist from the label map
// already has a similarly titled track.
type ArtistTitleLookup interface {
	TitlesByArtist(ctx context.Context, artistName string) ([]string, error)
}

// TrackLists1001Provider is the first tier-2 external source, ordered
// before Discogs and MixesDB per spec.md §4.10.
type TrackLists1001Provider interface {
	// Search returns the most commonly attributed artist across results
	// for "title label" along with how many results attributed it.
	Search(ctx context.Context, title, label string) (artist string, occurrences int, found bool, err error)
}

// DiscogsArtistProvider looks up a release's artist by label, used
// only when the label is known.
type DiscogsArtistProvider interface {
	Search(ctx context.Context, title, label string) (artist string, found bool, err error)
}

// MixesDBProvider is the last tier-2 fallback.
type MixesDBProvider interface {
	Search(ctx context.Context, title, label string) (artist string, found bool, err error)
}

// FeedbackStore persists a tier-2 win as internal knowledge: a new
// artist (if needed) plus a track_artist edge.
type FeedbackStore interface {
	InsertArtistAndLink(ctx context.Context, artistName string, trackID uuid.UUID) error
}

// Sources bundles every dependency the resolver calls. Any nil field
// skips the tier or step that uses it.
type Sources struct {
	TitleIndex        TitleIndex
	LabelMap          LabelMapStore
	ArtistTitles      ArtistTitleLookup
	TrackLists1001    TrackLists1001Provider
	Discogs           DiscogsArtistProvider
	MixesDB           MixesDBProvider
	Feedback          FeedbackStore
}

// Resolver runs the C10 state machine for one unresolved track at a time.
type Resolver struct {
	sources Sources

	labelMu     sync.Mutex
	labelLoaded bool
	labelData   map[string][]LabelArtistCount // normalized label -> artists sorted desc by TrackCount
}

func New(sources Sources) *Resolver {
	return &Resolver{sources: sources}
}

// IsUnresolved reports whether artistName is missing or a known
// placeholder, the precondition for running the resolver at all.
func IsUnresolved(artistName string) bool {
	switch strings.ToLower(strings.TrimSpace(artistName)) {
	case "", "unknown", "various artists", "various":
		return true
	default:
		return false
	}
}

// parsed is the result of splitting a raw title into label and
// mashup components, per spec.md §4.10's Tier 1 parse step.
type parsed struct {
	label      string // normalized label, "" if none found
	components []string
}

func parseTitle(rawTitle string) parsed {
	title := rawTitle
	label := ""
	if m := labelBracketRE.FindStringSubmatch(title); m != nil {
		label = strings.ToLower(strings.TrimSpace(m[1]))
		title = strings.TrimSpace(title[:len(title)-len(m[0])])
	}

	var components []string
	for _, part := range mashupSplitRE.Split(title, -1) {
		part = mixSuffixRE.ReplaceAllString(strings.TrimSpace(part), "")
		if part != "" {
			components = append(components, part)
		}
	}
	return parsed{label: label, components: components}
}

// Resolve runs the full tier1 -> tier2 -> feedback state machine for a
// track with the given title (used for label/mashup parsing and
// title-similarity lookups) and trackID (used only for the tier-3
// feedback edge). It returns ok=false if every tier was exhausted
// without a confident match; callers must not block enrichment on
// failure (spec.md §4.10).
func (r *Resolver) Resolve(ctx context.Context, trackID uuid.UUID, rawTitle string) (Result, bool) {
	p := parseTitle(rawTitle)

	if res, ok := r.tier1Mashup(ctx, p); ok {
		return res, true
	}
	if res, ok := r.tier1LabelMap(ctx, p); ok {
		return res, true
	}
	if res, ok := r.tier2(ctx, trackID, p); ok {
		return res, true
	}
	return Result{Stage: StageFail}, false
}

func (r *Resolver) tier1Mashup(ctx context.Context, p parsed) (Result, bool) {
	if r.sources.TitleIndex == nil || len(p.components) < 2 {
		return Result{}, false
	}
	var artists []string
	seen := make(map[string]bool)
	for _, comp := range p.components {
		matches, err := r.sources.TitleIndex.FindSimilarTitles(ctx, comp, mashupComponentMinSimilarity)
		if err != nil || len(matches) == 0 {
			return Result{}, false
		}
		best := matches[0]
		if !seen[best.ArtistName] {
			seen[best.ArtistName] = true
			artists = append(artists, best.ArtistName)
		}
	}
	if len(artists) == 0 {
		return Result{}, false
	}
	return Result{ArtistName: strings.Join(artists, " vs "), Confidence: 0.9, Stage: StageTier1Mashup}, true
}

func (r *Resolver) ensureLabelMap(ctx context.Context) error {
	r.labelMu.Lock()
	defer r.labelMu.Unlock()
	if r.labelLoaded {
		return nil
	}
	rows, err := r.sources.LabelMap.LoadLabelArtistCounts(ctx)
	if err != nil {
		return err
	}
	byLabel := make(map[string][]LabelArtistCount)
	for _, row := range rows {
		byLabel[row.Label] = append(byLabel[row.Label], row)
	}
	for label, rows := range byLabel {
		sortByTrackCountDesc(rows)
		byLabel[label] = rows
	}
	r.labelData = byLabel
	r.labelLoaded = true
	return nil
}

func sortByTrackCountDesc(rows []LabelArtistCount) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].TrackCount > rows[j-1].TrackCount; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

// invalidator is satisfied by LabelMapStore implementations that sit
// in front of a shared cache (e.g. RedisLabelMapCache) and need to
// drop their own cached copy alongside the Resolver's in-memory one.
type invalidator interface {
	Invalidate(ctx context.Context) error
}

// InvalidateLabelMap drops the cached label map so the next Tier-1
// lookup rebuilds it, per spec.md §5's "invalidated (not refreshed
// eagerly) on feedback-loop insert" policy. If the underlying
// LabelMapStore also caches (e.g. across processes via Redis), that
// cache is dropped too.
func (r *Resolver) InvalidateLabelMap(ctx context.Context) {
	r.labelMu.Lock()
	r.labelLoaded = false
	r.labelData = nil
	r.labelMu.Unlock()

	if inv, ok := r.sources.LabelMap.(invalidator); ok {
		_ = inv.Invalidate(ctx)
	}
}

func (r *Resolver) tier1LabelMap(ctx context.Context, p parsed) (Result, bool) {
	if r.sources.LabelMap == nil || r.sources.ArtistTitles == nil || p.label == "" || len(p.components) == 0 {
		return Result{}, false
	}
	if err := r.ensureLabelMap(ctx); err != nil {
		return Result{}, false
	}
	r.labelMu.Lock()
	candidates := r.labelData[p.label]
	r.labelMu.Unlock()
	if len(candidates) == 0 {
		return Result{}, false
	}

	var totalTracks int
	for _, c := range candidates {
		totalTracks += c.TrackCount
	}
	if totalTracks == 0 {
		return Result{}, false
	}

	targetTitle := p.components[0]
	n := labelMapTopN
	if n > len(candidates) {
		n = len(candidates)
	}

	var bestArtist string
	var bestConfidence float64
	for _, cand := range candidates[:n] {
		titles, err := r.sources.ArtistTitles.TitlesByArtist(ctx, cand.Artist)
		if err != nil {
			continue
		}
		var bestSim float64
		for _, t := range titles {
			if s := fuzzy.TitleSimilarity(targetTitle, t); s > bestSim {
				bestSim = s
			}
		}
		if bestSim <= labelMapTitleMinSimilarity {
			continue
		}
		share := float64(cand.TrackCount) / float64(totalTracks)
		confidence := 0.7*bestSim + 0.3*share
		if confidence > bestConfidence {
			bestConfidence = confidence
			bestArtist = cand.Artist
		}
	}
	if bestArtist == "" {
		return Result{}, false
	}
	return Result{ArtistName: bestArtist, Confidence: bestConfidence, Stage: StageTier1LabelMap}, true
}

func (r *Resolver) tier2(ctx context.Context, trackID uuid.UUID, p parsed) (Result, bool) {
	title := p.components
	var titleStr string
	if len(title) > 0 {
		titleStr = title[0]
	}

	if r.sources.TrackLists1001 != nil {
		if artist, occurrences, found, err := r.sources.TrackLists1001.Search(ctx, titleStr, p.label); err == nil && found {
			confidence := float64(occurrences) / 10
			if confidence > 0.95 {
				confidence = 0.95
			}
			return r.onTier2Success(ctx, trackID, artist, confidence, StageTier2_1001TL)
		}
	}
	if p.label != "" && r.sources.Discogs != nil {
		if artist, found, err := r.sources.Discogs.Search(ctx, titleStr, p.label); err == nil && found {
			return r.onTier2Success(ctx, trackID, artist, 0.85, StageTier2Discogs)
		}
	}
	if r.sources.MixesDB != nil {
		if artist, found, err := r.sources.MixesDB.Search(ctx, titleStr, p.label); err == nil && found {
			return r.onTier2Success(ctx, trackID, artist, 0.70, StageTier2MixesDB)
		}
	}
	return Result{}, false
}

// onTier2Success runs the tier-3 feedback loop: it records the win as
// internal knowledge and invalidates the cached label map so the next
// tier-1 lookup rebuilds it with the new fact.
func (r *Resolver) onTier2Success(ctx context.Context, trackID uuid.UUID, artist string, confidence float64, stage Stage) (Result, bool) {
	if r.sources.Feedback != nil {
		_ = r.sources.Feedback.InsertArtistAndLink(ctx, artist, trackID)
		r.InvalidateLabelMap(ctx)
	}
	return Result{ArtistName: artist, Confidence: confidence, Stage: stage}, true
}

// ResolveUnknownArtist satisfies internal/enrich.UnknownArtistResolver
// so the waterfall's step 1 can call into this resolver structurally,
// without enrich importing this package.
func (r *Resolver) ResolveUnknownArtist(ctx context.Context, t model.Track) (string, float64, bool) {
	res, ok := r.Resolve(ctx, t.TrackID, t.Title)
	if !ok {
		return "", 0, false
	}
	return res.ArtistName, res.Confidence, true
}
