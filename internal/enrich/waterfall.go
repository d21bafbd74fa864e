package enrich

import (
	"context"
	"time"

	"github.com/corvyn/setgraph/internal/camelot"
	"github.com/corvyn/setgraph/internal/model"
	"github.com/corvyn/setgraph/internal/normalize"
	"github.com/corvyn/setgraph/internal/perr"
)

// MatchKind classifies how a piece of metadata was obtained, for
// confidence scoring per spec.md §4.9.
type MatchKind string

const (
	MatchExactAPI          MatchKind = "exact_api"           // ISRC or Spotify ID -> Spotify/MusicBrainz
	MatchDisambiguatedText MatchKind = "disambiguated_text"  // normalized title + label
	MatchFuzzy             MatchKind = "fuzzy"                // fuzzy match >= threshold
	MatchCommunity         MatchKind = "community"            // Discogs/Last.fm with external link
	MatchContextual        MatchKind = "contextual"           // inference only
)

// fuzzyMatchFloor is the acceptance floor a fuzzy match must clear to
// be scoreable at all (internal/fuzzy.GlobalMinAcceptance).
const fuzzyMatchFloor = 0.80

// ConfidenceForMatch scores a single metadata match per spec.md §4.9's
// tier table. fuzzyScore is only consulted when kind is MatchFuzzy.
func ConfidenceForMatch(kind MatchKind, fuzzyScore float64) float64 {
	switch kind {
	case MatchExactAPI:
		return 0.95
	case MatchDisambiguatedText:
		return 0.80
	case MatchFuzzy:
		if fuzzyScore < fuzzyMatchFloor {
			return 0.0
		}
		if fuzzyScore > 1.0 {
			fuzzyScore = 1.0
		}
		// Linear scale from the acceptance floor to 1.0, mapped onto
		// 0.70-0.90.
		span := (fuzzyScore - fuzzyMatchFloor) / (1.0 - fuzzyMatchFloor)
		return 0.70 + span*0.20
	case MatchCommunity:
		return 0.60
	case MatchContextual:
		return 0.30
	default:
		return 0.0
	}
}

// ContextualBoost adds up to +0.10 when DJ-artist affinity and
// setlist coherence (genre/BPM/key neighborhood) both agree, per
// spec.md §4.9.
func ContextualBoost(djArtistAffinity, setlistCoherence bool) float64 {
	if djArtistAffinity && setlistCoherence {
		return 0.10
	}
	return 0.0
}

// FinalConfidence combines the best applicable match tier with the
// contextual boost, capped at 1.0.
func FinalConfidence(best float64, boost float64) float64 {
	final := best + boost
	if final > 1.0 {
		final = 1.0
	}
	return final
}

// UnknownArtistResolver is the step-1 hook into C10: resolving a
// missing/placeholder artist via fuzzy matching across already-known
// external facts. Defined here as a consumer interface so enrich
// doesn't import the resolve package; internal/resolve's resolver
// satisfies it structurally.
type UnknownArtistResolver interface {
	ResolveUnknownArtist(ctx context.Context, t model.Track) (artistName string, confidence float64, ok bool)
}

// Config tunes breaker behavior per service; a zero-value Config uses
// DefaultBreakerConfig for every service.
type Config struct {
	Breakers map[model.Source]BreakerConfig
}

// Enricher runs the C9 waterfall over a single silver track.
type Enricher struct {
	providers Providers
	resolver  UnknownArtistResolver // optional; nil disables step 1

	breakers map[model.Source]*breaker
}

// New builds an Enricher. resolver may be nil to skip the
// unknown-artist fuzzy pass.
func New(providers Providers, resolver UnknownArtistResolver, cfg Config) *Enricher {
	e := &Enricher{providers: providers, resolver: resolver, breakers: make(map[model.Source]*breaker)}
	for _, src := range []model.Source{
		model.SourceSpotify, model.SourceTidal, model.SourceMusicBrainz,
		model.SourceDiscogs, model.SourceLastFM, model.SourceAcousticBrainz, model.SourceGetSongBPM,
	} {
		bc := DefaultBreakerConfig
		if cfg.Breakers != nil {
			if c, ok := cfg.Breakers[src]; ok {
				bc = c
			}
		}
		e.breakers[src] = newBreaker(string(src), bc)
	}
	return e
}

func isUnknownArtist(name string) bool {
	switch normalize.NormalizeArtist(name) {
	case "", "unknown", "various artists", "various":
		return true
	default:
		return false
	}
}

// Enrich runs the full waterfall over t and returns the updated track
// plus its EnrichmentStatus. Every step is independent: a failure in
// one step never prevents later steps from running.
func (e *Enricher) Enrich(ctx context.Context, t model.Track) (model.Track, model.EnrichmentStatus) {
	status := model.EnrichmentStatus{
		TrackID:     t.TrackID,
		Status:      model.EnrichmentPending,
		LastAttempt: time.Now(),
	}

	var bestConfidence float64
	var bestKind MatchKind = MatchContextual
	var anyRetriable bool
	markSource := func(src model.Source) { status.SourcesEnriched = append(status.SourcesEnriched, src) }
	considerMatch := func(kind MatchKind, fuzzyScore float64) {
		c := ConfidenceForMatch(kind, fuzzyScore)
		if c > bestConfidence {
			bestConfidence = c
			bestKind = kind
		}
	}
	noteErr := func(err error) {
		if err == nil {
			return
		}
		if isRetriable(err) {
			anyRetriable = true
		}
	}

	// Step 0: title parse, always.
	parsed := normalize.NormalizeTrackString(t.ArtistName + " - " + t.Title)
	if t.NormTitle == "" {
		t.NormTitle = parsed.Title
	}
	if parsed.IsRemix {
		t.IsRemix = true
	}

	// Step 1: unknown-artist fuzzy pass via C10.
	if e.resolver != nil && isUnknownArtist(t.ArtistName) {
		if name, confidence, ok := e.resolver.ResolveUnknownArtist(ctx, t); ok {
			t.ArtistName = name
			considerMatch(MatchFuzzy, confidence)
		}
	}

	// Step 2: Spotify detail + audio features by ID.
	if t.SpotifyID != nil && e.providers.Spotify != nil {
		rec, err := e.callSpotify(func() (SpotifyRecord, error) { return e.providers.Spotify.GetByID(ctx, *t.SpotifyID) })
		noteErr(err)
		if err == nil {
			applySpotify(&t, rec)
			markSource(model.SourceSpotify)
			considerMatch(MatchExactAPI, 0)
		}
	}

	// Step 3: ISRC-driven lookups.
	if t.ISRC != nil {
		if t.SpotifyID == nil && e.providers.Spotify != nil {
			rec, found, err := e.callSpotifySearch(func() (SpotifyRecord, bool, error) { return e.providers.Spotify.SearchByISRC(ctx, *t.ISRC) })
			noteErr(err)
			if err == nil && found {
				applySpotify(&t, rec)
				markSource(model.SourceSpotify)
				considerMatch(MatchExactAPI, 0)
			}
		}
		if e.providers.Tidal != nil {
			rec, found, err := e.callTidal(func() (TidalRecord, bool, error) { return e.providers.Tidal.SearchByISRC(ctx, *t.ISRC) })
			noteErr(err)
			if err == nil && found {
				t.TidalID = &rec.TidalID
				markSource(model.SourceTidal)
				considerMatch(MatchExactAPI, 0)
			}
		}
		if e.providers.MusicBrainz != nil {
			rec, found, err := e.callMusicBrainz(func() (MusicBrainzRecord, bool, error) { return e.providers.MusicBrainz.SearchByISRC(ctx, *t.ISRC) })
			noteErr(err)
			if err == nil && found {
				t.MusicBrainzID = &rec.MusicBrainzID
				markSource(model.SourceMusicBrainz)
				considerMatch(MatchExactAPI, 0)
			}
		}
	}

	// Step 4: text search fallback when Spotify ID still unknown.
	if t.SpotifyID == nil && e.providers.Spotify != nil {
		rec, found, err := e.callSpotifySearch(func() (SpotifyRecord, bool, error) {
			return e.providers.Spotify.SearchByText(ctx, t.ArtistName, t.Title)
		})
		noteErr(err)
		if err == nil && found {
			applySpotify(&t, rec)
			markSource(model.SourceSpotify)
			considerMatch(MatchDisambiguatedText, 0)
		}
		if e.providers.Tidal != nil {
			trec, found, err := e.callTidal(func() (TidalRecord, bool, error) {
				return e.providers.Tidal.SearchByText(ctx, t.ArtistName, t.Title)
			})
			noteErr(err)
			if err == nil && found {
				t.TidalID = &trec.TidalID
				markSource(model.SourceTidal)
				considerMatch(MatchDisambiguatedText, 0)
			}
		}
	}

	// Step 5: MusicBrainz text search fallback.
	if t.MusicBrainzID == nil && e.providers.MusicBrainz != nil {
		rec, found, err := e.callMusicBrainz(func() (MusicBrainzRecord, bool, error) {
			return e.providers.MusicBrainz.SearchByText(ctx, t.ArtistName, t.Title)
		})
		noteErr(err)
		if err == nil && found {
			t.MusicBrainzID = &rec.MusicBrainzID
			if t.ISRC == nil && rec.ISRC != "" {
				t.ISRC = &rec.ISRC
			}
			markSource(model.SourceMusicBrainz)
			considerMatch(MatchDisambiguatedText, 0)
		}
	}

	// Step 6: Discogs (release/label metadata).
	if e.providers.Discogs != nil {
		rec, found, err := e.callDiscogs(func() (DiscogsRecord, bool, error) { return e.providers.Discogs.Search(ctx, t.ArtistName, t.Title) })
		noteErr(err)
		if err == nil && found {
			t.DiscogsID = &rec.DiscogsID
			if t.Label == nil && rec.Label != "" {
				t.Label = &rec.Label
			}
			markSource(model.SourceDiscogs)
			considerMatch(MatchCommunity, 0)
		}
	}

	// Step 7: Last.fm (tags, popularity).
	if e.providers.LastFM != nil {
		_, found, err := e.callLastFM(func() (LastFMRecord, bool, error) { return e.providers.LastFM.Search(ctx, t.ArtistName, t.Title) })
		noteErr(err)
		if err == nil && found {
			markSource(model.SourceLastFM)
			considerMatch(MatchCommunity, 0)
		}
	}

	// Step 8: audio-features fallback, filling bpm/key only if absent.
	if t.BPM == nil || t.Key == nil {
		if t.MusicBrainzID != nil && e.providers.AcousticBrainz != nil {
			bpm, key, found, err := e.callAcousticBrainz(ctx, *t.MusicBrainzID)
			noteErr(err)
			if err == nil && found {
				if t.BPM == nil && bpm != nil {
					clamped := model.ClampBPM(*bpm)
					t.BPM = &clamped
				}
				if t.Key == nil && key != nil {
					t.Key = key
				}
				markSource(model.SourceAcousticBrainz)
				considerMatch(MatchCommunity, 0)
			}
		}
		if (t.BPM == nil || t.Key == nil) && e.providers.GetSongBPM != nil {
			bpm, key, found, err := e.callGetSongBPM(ctx, t.ArtistName, t.Title)
			noteErr(err)
			if err == nil && found {
				if t.BPM == nil && bpm != nil {
					clamped := model.ClampBPM(*bpm)
					t.BPM = &clamped
				}
				if t.Key == nil && key != nil {
					t.Key = key
				}
				markSource(model.SourceGetSongBPM)
				considerMatch(MatchContextual, 0)
			}
		}
	}

	// Step 9: derive camelot_key from key, if present and not already set.
	if t.CamelotKey == nil && t.Key != nil {
		if code, ok := camelot.ToCamelotFromKeyName(*t.Key); ok {
			s := string(code)
			t.CamelotKey = &s
		}
	}

	// Step 10: final confidence and status.
	boost := ContextualBoost(false, false) // contextual signals require playlist context the per-track waterfall doesn't have
	status.ConfidenceScore = FinalConfidence(bestConfidence, boost)
	status.ConfidenceTier = model.Tier(status.ConfidenceScore)
	status.IsRetriable = anyRetriable

	switch {
	case len(status.SourcesEnriched) == 0 && bestKind == MatchContextual && bestConfidence == 0:
		status.Status = model.EnrichmentFailed
	case anyRetriable:
		status.Status = model.EnrichmentPartial
	default:
		status.Status = model.EnrichmentCompleted
	}

	return t, status
}

func applySpotify(t *model.Track, rec SpotifyRecord) {
	t.SpotifyID = &rec.SpotifyID
	if t.ISRC == nil && rec.ISRC != "" {
		t.ISRC = &rec.ISRC
	}
	if t.BPM == nil && rec.BPM != nil {
		clamped := model.ClampBPM(*rec.BPM)
		t.BPM = &clamped
	}
	if t.Key == nil && rec.Key != nil {
		t.Key = rec.Key
	}
	if t.DurationMs == nil && rec.DurationMs != nil {
		t.DurationMs = rec.DurationMs
	}
}

func isRetriable(err error) bool { return perr.IsRetriable(err) }

type audioFeatures struct {
	bpm   *float64
	key   *string
	found bool
}

func (e *Enricher) callAcousticBrainz(ctx context.Context, mbid string) (*float64, *string, bool, error) {
	out, err := e.breakers[model.SourceAcousticBrainz].call(func() (any, error) {
		bpm, key, found, err := e.providers.AcousticBrainz.GetByMusicBrainzID(ctx, mbid)
		return audioFeatures{bpm, key, found}, err
	})
	if err != nil {
		return nil, nil, false, err
	}
	af := out.(audioFeatures)
	return af.bpm, af.key, af.found, nil
}

func (e *Enricher) callGetSongBPM(ctx context.Context, artist, title string) (*float64, *string, bool, error) {
	out, err := e.breakers[model.SourceGetSongBPM].call(func() (any, error) {
		bpm, key, found, err := e.providers.GetSongBPM.SearchByText(ctx, artist, title)
		return audioFeatures{bpm, key, found}, err
	})
	if err != nil {
		return nil, nil, false, err
	}
	af := out.(audioFeatures)
	return af.bpm, af.key, af.found, nil
}

// The following callX helpers route a provider call through that
// service's breaker and recover its typed return value. gobreaker's
// Execute signature is the non-generic any/interface{} shape (pinned
// gobreaker version predates generics), so each service needs its own
// tiny type-asserting wrapper.

func (e *Enricher) callSpotify(fn func() (SpotifyRecord, error)) (SpotifyRecord, error) {
	out, err := e.breakers[model.SourceSpotify].call(func() (any, error) { return fn() })
	if err != nil {
		return SpotifyRecord{}, err
	}
	return out.(SpotifyRecord), nil
}

type foundResult[T any] struct {
	rec   T
	found bool
}

func (e *Enricher) callSpotifySearch(fn func() (SpotifyRecord, bool, error)) (SpotifyRecord, bool, error) {
	out, err := e.breakers[model.SourceSpotify].call(func() (any, error) {
		rec, found, err := fn()
		return foundResult[SpotifyRecord]{rec, found}, err
	})
	if err != nil {
		return SpotifyRecord{}, false, err
	}
	fr := out.(foundResult[SpotifyRecord])
	return fr.rec, fr.found, nil
}

func (e *Enricher) callTidal(fn func() (TidalRecord, bool, error)) (TidalRecord, bool, error) {
	out, err := e.breakers[model.SourceTidal].call(func() (any, error) {
		rec, found, err := fn()
		return foundResult[TidalRecord]{rec, found}, err
	})
	if err != nil {
		return TidalRecord{}, false, err
	}
	fr := out.(foundResult[TidalRecord])
	return fr.rec, fr.found, nil
}

func (e *Enricher) callMusicBrainz(fn func() (MusicBrainzRecord, bool, error)) (MusicBrainzRecord, bool, error) {
	out, err := e.breakers[model.SourceMusicBrainz].call(func() (any, error) {
		rec, found, err := fn()
		return foundResult[MusicBrainzRecord]{rec, found}, err
	})
	if err != nil {
		return MusicBrainzRecord{}, false, err
	}
	fr := out.(foundResult[MusicBrainzRecord])
	return fr.rec, fr.found, nil
}

func (e *Enricher) callDiscogs(fn func() (DiscogsRecord, bool, error)) (DiscogsRecord, bool, error) {
	out, err := e.breakers[model.SourceDiscogs].call(func() (any, error) {
		rec, found, err := fn()
		return foundResult[DiscogsRecord]{rec, found}, err
	})
	if err != nil {
		return DiscogsRecord{}, false, err
	}
	fr := out.(foundResult[DiscogsRecord])
	return fr.rec, fr.found, nil
}

func (e *Enricher) callLastFM(fn func() (LastFMRecord, bool, error)) (LastFMRecord, bool, error) {
	out, err := e.breakers[model.SourceLastFM].call(func() (any, error) {
		rec, found, err := fn()
		return foundResult[LastFMRecord]{rec, found}, err
	})
	if err != nil {
		return LastFMRecord{}, false, err
	}
	fr := out.(foundResult[LastFMRecord])
	return fr.rec, fr.found, nil
}
