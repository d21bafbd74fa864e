package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvyn/setgraph/internal/model"
	"github.com/corvyn/setgraph/internal/perr"
)

type fakeSpotify struct {
	byID   map[string]SpotifyRecord
	byISRC map[string]SpotifyRecord
	byText map[string]SpotifyRecord
	err    error
}

func (f *fakeSpotify) GetByID(ctx context.Context, id string) (SpotifyRecord, error) {
	if f.err != nil {
		return SpotifyRecord{}, f.err
	}
	rec, ok := f.byID[id]
	if !ok {
		return SpotifyRecord{}, errors.New("not found")
	}
	return rec, nil
}

func (f *fakeSpotify) SearchByISRC(ctx context.Context, isrc string) (SpotifyRecord, bool, error) {
	if f.err != nil {
		return SpotifyRecord{}, false, f.err
	}
	rec, ok := f.byISRC[isrc]
	return rec, ok, nil
}

func (f *fakeSpotify) SearchByText(ctx context.Context, artist, title string) (SpotifyRecord, bool, error) {
	if f.err != nil {
		return SpotifyRecord{}, false, f.err
	}
	rec, ok := f.byText[artist+"|"+title]
	return rec, ok, nil
}

type fakeMusicBrainz struct {
	byISRC map[string]MusicBrainzRecord
	byText map[string]MusicBrainzRecord
}

func (f *fakeMusicBrainz) SearchByISRC(ctx context.Context, isrc string) (MusicBrainzRecord, bool, error) {
	rec, ok := f.byISRC[isrc]
	return rec, ok, nil
}

func (f *fakeMusicBrainz) SearchByText(ctx context.Context, artist, title string) (MusicBrainzRecord, bool, error) {
	rec, ok := f.byText[artist+"|"+title]
	return rec, ok, nil
}

type fakeDiscogs struct {
	rec   DiscogsRecord
	found bool
}

func (f *fakeDiscogs) Search(ctx context.Context, artist, title string) (DiscogsRecord, bool, error) {
	return f.rec, f.found, nil
}

type fakeAcousticBrainz struct {
	bpm   *float64
	key   *string
	found bool
}

func (f *fakeAcousticBrainz) GetByMusicBrainzID(ctx context.Context, mbid string) (*float64, *string, bool, error) {
	return f.bpm, f.key, f.found, nil
}

type alwaysFailSpotify struct{}

func (alwaysFailSpotify) GetByID(ctx context.Context, id string) (SpotifyRecord, error) {
	return SpotifyRecord{}, perr.New(perr.KindHTTP, "spotify", "get track", errors.New("boom"))
}
func (alwaysFailSpotify) SearchByISRC(ctx context.Context, isrc string) (SpotifyRecord, bool, error) {
	return SpotifyRecord{}, false, perr.New(perr.KindHTTP, "spotify", "search isrc", errors.New("boom"))
}
func (alwaysFailSpotify) SearchByText(ctx context.Context, artist, title string) (SpotifyRecord, bool, error) {
	return SpotifyRecord{}, false, perr.New(perr.KindHTTP, "spotify", "search text", errors.New("boom"))
}

func f64(v float64) *float64 { return &v }
func sp(v string) *string    { return &v }

func TestEnrich_ExactSpotifyIDMatch(t *testing.T) {
	spotifyID := "sp123"
	providers := Providers{
		Spotify: &fakeSpotify{byID: map[string]SpotifyRecord{
			"sp123": {SpotifyID: "sp123", ISRC: "US1234567890", BPM: f64(128), Key: sp("C minor")},
		}},
	}
	e := New(providers, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist", SpotifyID: &spotifyID}

	got, status := e.Enrich(context.Background(), track)

	assert.Equal(t, "US1234567890", *got.ISRC)
	assert.Equal(t, 128.0, *got.BPM)
	assert.Contains(t, status.SourcesEnriched, model.SourceSpotify)
	assert.Equal(t, 0.95, status.ConfidenceScore)
	assert.Equal(t, model.TierHigh, status.ConfidenceTier)
	assert.Equal(t, model.EnrichmentCompleted, status.Status)
}

func TestEnrich_ISRCFallsThroughMusicBrainz(t *testing.T) {
	isrc := "GB1234567890"
	providers := Providers{
		MusicBrainz: &fakeMusicBrainz{byISRC: map[string]MusicBrainzRecord{
			isrc: {MusicBrainzID: "mb-1", ISRC: isrc},
		}},
	}
	e := New(providers, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist", ISRC: &isrc}

	got, status := e.Enrich(context.Background(), track)

	require.NotNil(t, got.MusicBrainzID)
	assert.Equal(t, "mb-1", *got.MusicBrainzID)
	assert.Equal(t, 0.95, status.ConfidenceScore)
}

func TestEnrich_TextSearchIsDisambiguatedTier(t *testing.T) {
	providers := Providers{
		MusicBrainz: &fakeMusicBrainz{byText: map[string]MusicBrainzRecord{
			"Artist|Title": {MusicBrainzID: "mb-2"},
		}},
	}
	e := New(providers, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist"}

	got, status := e.Enrich(context.Background(), track)

	require.NotNil(t, got.MusicBrainzID)
	assert.Equal(t, 0.80, status.ConfidenceScore)
	assert.Equal(t, model.TierMedium, status.ConfidenceTier)
}

func TestEnrich_DiscogsFillsLabelAtCommunityTier(t *testing.T) {
	providers := Providers{
		Discogs: &fakeDiscogs{rec: DiscogsRecord{DiscogsID: "d-1", Label: "Great Label"}, found: true},
	}
	e := New(providers, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist"}

	got, status := e.Enrich(context.Background(), track)

	require.NotNil(t, got.Label)
	assert.Equal(t, "Great Label", *got.Label)
	assert.Equal(t, 0.60, status.ConfidenceScore)
	assert.Equal(t, model.TierLow, status.ConfidenceTier)
}

func TestEnrich_AudioFeatureFallbackOnlyFillsMissingFields(t *testing.T) {
	mbid := "mb-3"
	existingBPM := 140.0
	providers := Providers{
		AcousticBrainz: &fakeAcousticBrainz{bpm: f64(99), key: sp("A minor"), found: true},
	}
	e := New(providers, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist", MusicBrainzID: &mbid, BPM: &existingBPM}

	got, _ := e.Enrich(context.Background(), track)

	assert.Equal(t, 140.0, *got.BPM, "existing BPM must not be overwritten")
	require.NotNil(t, got.Key)
	assert.Equal(t, "A minor", *got.Key)
}

func TestEnrich_DerivesCamelotKeyFromKey(t *testing.T) {
	providers := Providers{
		Discogs: &fakeDiscogs{found: false},
	}
	e := New(providers, nil, Config{})
	key := "C minor"
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist", Key: &key}

	got, _ := e.Enrich(context.Background(), track)

	require.NotNil(t, got.CamelotKey)
	assert.Equal(t, "4A", *got.CamelotKey)
}

func TestEnrich_NoMatchesAnywhereIsFailed(t *testing.T) {
	e := New(Providers{}, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist"}

	_, status := e.Enrich(context.Background(), track)

	assert.Equal(t, model.EnrichmentFailed, status.Status)
	assert.Equal(t, 0.0, status.ConfidenceScore)
	assert.Equal(t, model.TierUnreliable, status.ConfidenceTier)
}

func TestEnrich_RetriableProviderErrorMarksPartial(t *testing.T) {
	spotifyID := "sp999"
	providers := Providers{
		Spotify: alwaysFailSpotify{},
		Discogs: &fakeDiscogs{rec: DiscogsRecord{DiscogsID: "d-9"}, found: true},
	}
	e := New(providers, nil, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Artist", SpotifyID: &spotifyID}

	_, status := e.Enrich(context.Background(), track)

	assert.True(t, status.IsRetriable)
	assert.Equal(t, model.EnrichmentPartial, status.Status)
}

type fakeResolver struct {
	name       string
	confidence float64
	ok         bool
}

func (f fakeResolver) ResolveUnknownArtist(ctx context.Context, t model.Track) (string, float64, bool) {
	return f.name, f.confidence, f.ok
}

func TestEnrich_UnknownArtistResolvedViaResolver(t *testing.T) {
	e := New(Providers{}, fakeResolver{name: "Resolved Artist", confidence: 0.9, ok: true}, Config{})
	track := model.Track{TrackID: uuid.New(), Title: "Title", ArtistName: "Unknown"}

	got, status := e.Enrich(context.Background(), track)

	assert.Equal(t, "Resolved Artist", got.ArtistName)
	assert.Greater(t, status.ConfidenceScore, 0.0)
}

func TestConfidenceForMatch_Tiers(t *testing.T) {
	assert.Equal(t, 0.95, ConfidenceForMatch(MatchExactAPI, 0))
	assert.Equal(t, 0.80, ConfidenceForMatch(MatchDisambiguatedText, 0))
	assert.Equal(t, 0.60, ConfidenceForMatch(MatchCommunity, 0))
	assert.Equal(t, 0.30, ConfidenceForMatch(MatchContextual, 0))
	assert.Equal(t, 0.0, ConfidenceForMatch(MatchFuzzy, 0.5), "below floor scores zero")
	assert.InDelta(t, 0.70, ConfidenceForMatch(MatchFuzzy, 0.80), 0.001, "floor maps to bottom of fuzzy band")
	assert.InDelta(t, 0.90, ConfidenceForMatch(MatchFuzzy, 1.0), 0.001, "perfect fuzzy maps to top of band")
}

func TestFinalConfidence_CapsAtOne(t *testing.T) {
	assert.Equal(t, 1.0, FinalConfidence(0.95, 0.10))
}

func TestContextualBoost_RequiresBothSignals(t *testing.T) {
	assert.Equal(t, 0.0, ContextualBoost(true, false))
	assert.Equal(t, 0.0, ContextualBoost(false, true))
	assert.Equal(t, 0.10, ContextualBoost(true, true))
}
