// Package transform implements C8: the dependency-ordered bronze→
// silver pass (validate, normalize, deduplicate, link relationships,
// score quality), per spec.md §4.8.
//
// No teacher file performs this kind of multi-entity upsert pipeline
// (derat-nup's closest analogue, cmd/nup/server's song-update path in
// server/db, is a single-entity upsert with no dependency ordering or
// quality scoring), so the orchestration here is built fresh. It
// keeps the teacher's habit of small, named pure helper functions
// (seen throughout cmd/nup/metadata) feeding a thin coordinating type,
// and of defining storage as narrow interfaces the way
// cmd/nup/client/files.Fetcher does, so the transformer is testable
// against in-memory fakes without a live database.
package transform

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvyn/setgraph/internal/model"
	"github.com/corvyn/setgraph/internal/normalize"
)

// ScrapeOrder is the dependency order spec.md §4.8 processing must
// follow: artists before tracks before playlists before playlist-
// tracks before transitions before track-artist relations.
var ScrapeOrder = []model.ScrapeType{
	model.ScrapeArtist,
	model.ScrapeTrack,
	model.ScrapePlaylist,
	model.ScrapePlaylistTrack,
	model.ScrapeTrackAdjacency,
	model.ScrapeTrackArtist,
}

// QualityScore computes a track's data_quality_score per spec.md
// §4.8: required fields 0.2 each, high-value optionals 0.1 each,
// medium optionals 0.067 each, capped at 1.0.
func QualityScore(t model.Track) float64 {
	var score float64
	if t.Title != "" {
		score += 0.2
	}
	if t.ArtistName != "" {
		score += 0.2
	}
	for _, present := range []bool{t.BPM != nil, t.Key != nil, t.Genre != nil, t.Label != nil} {
		if present {
			score += 0.1
		}
	}
	for _, present := range []bool{t.IsRemix, t.RemixType != nil && *t.RemixType != "", t.TrackType != nil && *t.TrackType != ""} {
		if present {
			score += 0.067
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ValidationStatus buckets a quality score per spec.md §4.8.
func ValidationStatus(score float64) string {
	switch {
	case score >= 0.7:
		return "valid"
	case score >= 0.4:
		return "warning"
	default:
		return "needs_review"
	}
}

// RecursiveParseJSON handles the "nested-JSON caveat": the raw bronze
// payload may contain JSON strings nested inside the JSON column, so
// before validation every string value that itself parses as JSON is
// recursively expanded.
func RecursiveParseJSON(raw []byte) (map[string]any, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("transform: parsing bronze payload: %w", err)
	}
	return expandNestedJSON(top).(map[string]any), nil
}

func expandNestedJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = expandNestedJSON(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = expandNestedJSON(child)
		}
		return val
	case string:
		trimmed := strings.TrimSpace(val)
		if len(trimmed) > 1 && (trimmed[0] == '{' || trimmed[0] == '[') {
			var nested any
			if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
				return expandNestedJSON(nested)
			}
		}
		return val
	default:
		return val
	}
}

// ParseEventDate tolerantly parses a playlist event date in either
// plain YYYY-MM-DD form or full ISO-with-time form.
func ParseEventDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("transform: unparseable event date %q", s)
}

// playlistNamespace is a fixed, arbitrary UUID used as the namespace
// for deriving stable playlist IDs from (name, source).
var playlistNamespace = uuid.MustParse("6ba7b813-9dad-11d1-80b4-00c04fd430c8")

// DerivePlaylistID hashes (name, source) into a stable UUID so the
// same playlist always upserts to the same row.
func DerivePlaylistID(name string, source model.Source) uuid.UUID {
	return uuid.NewSHA1(playlistNamespace, []byte(string(source)+"\x00"+name))
}

// ArtistStore upserts artists keyed by normalized_name, merging
// aliases and lineage.
type ArtistStore interface {
	UpsertArtist(ctx context.Context, normalizedName, canonicalName string, aliases []string, bronzeID uuid.UUID) (model.Artist, error)
}

// TrackStore resolves and upserts tracks.
type TrackStore interface {
	FindByISRC(ctx context.Context, isrc string) (model.Track, bool, error)
	FindByArtistTitle(ctx context.Context, artistName, normalizedTitle string) (model.Track, bool, error)
	FindByTitle(ctx context.Context, normalizedTitle string) (model.Track, bool, error)
	UpsertTrack(ctx context.Context, t model.Track) (model.Track, error)
}

// PlaylistStore resolves and upserts playlists.
type PlaylistStore interface {
	FindByBronzeID(ctx context.Context, bronzeID uuid.UUID) (model.Playlist, bool, error)
	FindByName(ctx context.Context, name string, source model.Source) (model.Playlist, bool, error)
	UpsertPlaylist(ctx context.Context, p model.Playlist) (model.Playlist, error)
}

// PlaylistTrackStore inserts playlist/track positions.
type PlaylistTrackStore interface {
	Insert(ctx context.Context, playlistID uuid.UUID, position int, trackID uuid.UUID) error
}

// TransitionStore upserts track-adjacency edges.
type TransitionStore interface {
	Upsert(ctx context.Context, trackA, trackB uuid.UUID, distance float64, observedAt time.Time) error
}

// TrackArtistStore links a track to an artist with a role.
type TrackArtistStore interface {
	Link(ctx context.Context, trackID, artistID uuid.UUID, role model.ArtistRole) error
}

// Stores bundles every silver-side dependency the transformer needs.
type Stores struct {
	Artists        ArtistStore
	Tracks         TrackStore
	Playlists      PlaylistStore
	PlaylistTracks PlaylistTrackStore
	Transitions    TransitionStore
	TrackArtists   TrackArtistStore
}

// Result tallies the outcome of processing one batch of bronze rows.
type Result struct {
	Processed      []uuid.UUID // scrape IDs to mark processed
	SkippedInvalid []uuid.UUID // scrape IDs missing required fields: marked processed, not retried
	Errors         []ProcessError
	NewTracks      []NewTrack // tracks upserted this pass, for callers queueing follow-on enrichment/resolution
}

// NewTrack identifies one track upserted during a Process call, along
// with the source the record producing it came from.
type NewTrack struct {
	TrackID uuid.UUID
	Source  model.Source
}

// ProcessError records a bronze record whose processing failed (a store
// error, or a referenced playlist, track or adjacency endpoint not yet in
// silver). It is not marked processed, so a later pass retries it.
type ProcessError struct {
	ScrapeID uuid.UUID
	Err      error
}

// Transformer runs the bronze→silver pass.
type Transformer struct {
	stores Stores
}

// New builds a Transformer over stores.
func New(stores Stores) *Transformer {
	return &Transformer{stores: stores}
}

// Process runs every record in recs through its scrape-type handler,
// in the dependency order spec.md §4.8 requires: callers are expected
// to have already grouped recs by type or to pass a mixed batch,
// since Process itself re-sorts by ScrapeOrder.
func (tr *Transformer) Process(ctx context.Context, recs []model.RawScrape) Result {
	byType := make(map[model.ScrapeType][]model.RawScrape)
	for _, r := range recs {
		byType[r.ScrapeType] = append(byType[r.ScrapeType], r)
	}

	var res Result
	for _, st := range ScrapeOrder {
		for _, rec := range byType[st] {
			switch st {
			case model.ScrapeArtist:
				tr.processArtist(ctx, rec, &res)
			case model.ScrapeTrack:
				tr.processTrack(ctx, rec, &res)
			case model.ScrapePlaylist:
				tr.processPlaylist(ctx, rec, &res)
			case model.ScrapePlaylistTrack:
				tr.processPlaylistTrack(ctx, rec, &res)
			case model.ScrapeTrackAdjacency:
				tr.processTrackAdjacency(ctx, rec, &res)
			case model.ScrapeTrackArtist:
				tr.processTrackArtist(ctx, rec, &res)
			}
		}
	}
	return res
}

type artistPayload struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

func (tr *Transformer) processArtist(ctx context.Context, rec model.RawScrape, res *Result) {
	var p artistPayload
	if err := json.Unmarshal(rec.RawData, &p); err != nil || p.Name == "" {
		res.SkippedInvalid = append(res.SkippedInvalid, rec.ScrapeID)
		return
	}
	normalized := normalize.NormalizeArtist(p.Name)
	if _, err := tr.stores.Artists.UpsertArtist(ctx, normalized, p.Name, p.Aliases, rec.ScrapeID); err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	res.Processed = append(res.Processed, rec.ScrapeID)
}

type trackPayload struct {
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	ISRC       *string  `json:"isrc"`
	BPM        *float64 `json:"bpm"`
	Key        *string  `json:"key"`
	Genre      *string  `json:"genre"`
	Label      *string  `json:"label"`
	IsRemix    bool     `json:"is_remix"`
	RemixType  *string  `json:"remix_type"`
	TrackType  *string  `json:"track_type"`
	IsMashup   bool     `json:"is_mashup"`
	IsLive     bool     `json:"is_live"`
	IsCover    bool     `json:"is_cover"`
	SpotifyID  *string  `json:"spotify_id"`
	TidalID    *string  `json:"tidal_id"`
}

func (tr *Transformer) processTrack(ctx context.Context, rec model.RawScrape, res *Result) {
	var p trackPayload
	if err := json.Unmarshal(rec.RawData, &p); err != nil || p.Title == "" || p.Artist == "" {
		res.SkippedInvalid = append(res.SkippedInvalid, rec.ScrapeID)
		return
	}
	normTitle := normalize.NormalizeTitleOnly(p.Title, false).Title

	existing, found, err := tr.resolveExistingTrack(ctx, p.ISRC, p.Artist, normTitle)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}

	t := model.Track{
		TrackID:          uuid.New(),
		Title:            p.Title,
		NormTitle:        normTitle,
		ArtistName:       p.Artist,
		BPM:              p.BPM,
		Key:              p.Key,
		Genre:            p.Genre,
		Label:            p.Label,
		ISRC:             p.ISRC,
		SpotifyID:        p.SpotifyID,
		TidalID:          p.TidalID,
		IsRemix:          p.IsRemix,
		RemixType:        p.RemixType,
		TrackType:        p.TrackType,
		IsMashup:         p.IsMashup,
		IsLive:           p.IsLive,
		IsCover:          p.IsCover,
		BronzeIDs:        []uuid.UUID{rec.ScrapeID},
		CreatedAt:        rec.ScrapedAt,
		UpdatedAt:        rec.ScrapedAt,
	}
	if t.BPM != nil {
		clamped := model.ClampBPM(*t.BPM)
		t.BPM = &clamped
	}
	if found {
		t.TrackID = existing.TrackID
		t.BronzeIDs = append(existing.BronzeIDs, rec.ScrapeID)
		t.CreatedAt = existing.CreatedAt
	}
	t.DataQualityScore = QualityScore(t)
	t.ValidationStatus = ValidationStatus(t.DataQualityScore)

	saved, err := tr.stores.Tracks.UpsertTrack(ctx, t)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	res.Processed = append(res.Processed, rec.ScrapeID)
	res.NewTracks = append(res.NewTracks, NewTrack{TrackID: saved.TrackID, Source: rec.Source})
}

// resolveExistingTrack implements the ISRC-first, then
// (artist, normalized_title) dedup key from spec.md §3's Lifecycle
// note.
func (tr *Transformer) resolveExistingTrack(ctx context.Context, isrc *string, artist, normTitle string) (model.Track, bool, error) {
	if isrc != nil && *isrc != "" {
		if t, ok, err := tr.stores.Tracks.FindByISRC(ctx, *isrc); err != nil {
			return model.Track{}, false, err
		} else if ok {
			return t, true, nil
		}
	}
	return tr.stores.Tracks.FindByArtistTitle(ctx, artist, normTitle)
}

type playlistPayload struct {
	Name      string  `json:"name"`
	SourceURL *string `json:"source_url"`
	EventDate *string `json:"event_date"`
	Venue     *string `json:"venue"`
}

func (tr *Transformer) processPlaylist(ctx context.Context, rec model.RawScrape, res *Result) {
	var p playlistPayload
	if err := json.Unmarshal(rec.RawData, &p); err != nil || p.Name == "" {
		res.SkippedInvalid = append(res.SkippedInvalid, rec.ScrapeID)
		return
	}
	pl := model.Playlist{
		PlaylistID: DerivePlaylistID(p.Name, rec.Source),
		Name:       p.Name,
		Source:     rec.Source,
		SourceURL:  p.SourceURL,
		Venue:      p.Venue,
		CreatedAt:  rec.ScrapedAt,
		UpdatedAt:  rec.ScrapedAt,
	}
	if p.EventDate != nil {
		if when, err := ParseEventDate(*p.EventDate); err == nil {
			pl.EventDate = &when
		}
	}
	if _, err := tr.stores.Playlists.UpsertPlaylist(ctx, pl); err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	res.Processed = append(res.Processed, rec.ScrapeID)
}

type playlistTrackPayload struct {
	PlaylistName string `json:"playlist_name"`
	Position     int    `json:"position"`
	TrackTitle   string `json:"track_title"`
	ArtistName   string `json:"artist_name"`
}

func (tr *Transformer) processPlaylistTrack(ctx context.Context, rec model.RawScrape, res *Result) {
	var p playlistTrackPayload
	if err := json.Unmarshal(rec.RawData, &p); err != nil || p.PlaylistName == "" || p.TrackTitle == "" {
		res.SkippedInvalid = append(res.SkippedInvalid, rec.ScrapeID)
		return
	}
	playlist, ok, err := tr.stores.Playlists.FindByName(ctx, p.PlaylistName, rec.Source)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	if !ok {
		// Referenced playlist hasn't landed yet; this is retriable,
		// not invalid, since it may resolve once its own bronze row
		// is processed.
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: fmt.Errorf("transform: playlist %q not yet resolved", p.PlaylistName)})
		return
	}

	normTitle := normalize.NormalizeTitleOnly(p.TrackTitle, false).Title
	track, ok, err := tr.resolveTrackForLink(ctx, p.ArtistName, normTitle)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	if !ok {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: fmt.Errorf("transform: track %q not yet resolved", p.TrackTitle)})
		return
	}

	if err := tr.stores.PlaylistTracks.Insert(ctx, playlist.PlaylistID, p.Position, track.TrackID); err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	res.Processed = append(res.Processed, rec.ScrapeID)
}

// resolveTrackForLink implements "resolve track by bronze id, else by
// exact title, else by (title, artist)" loosely: bronze-id resolution
// happens upstream of this package (the caller already knows which
// bronze record produced which track via BronzeIDs lineage), so this
// tries exact normalized title first, then (artist, title).
func (tr *Transformer) resolveTrackForLink(ctx context.Context, artist, normTitle string) (model.Track, bool, error) {
	if t, ok, err := tr.stores.Tracks.FindByTitle(ctx, normTitle); err != nil {
		return model.Track{}, false, err
	} else if ok {
		return t, true, nil
	}
	return tr.stores.Tracks.FindByArtistTitle(ctx, artist, normTitle)
}

type adjacencyPayload struct {
	TrackATitle string `json:"track_a_title"`
	TrackBTitle string `json:"track_b_title"`
	Distance    float64 `json:"distance"`
}

func (tr *Transformer) processTrackAdjacency(ctx context.Context, rec model.RawScrape, res *Result) {
	var p adjacencyPayload
	if err := json.Unmarshal(rec.RawData, &p); err != nil || p.TrackATitle == "" || p.TrackBTitle == "" {
		res.SkippedInvalid = append(res.SkippedInvalid, rec.ScrapeID)
		return
	}
	normA := normalize.NormalizeTitleOnly(p.TrackATitle, false).Title
	normB := normalize.NormalizeTitleOnly(p.TrackBTitle, false).Title

	a, okA, err := tr.stores.Tracks.FindByTitle(ctx, normA)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	b, okB, err := tr.stores.Tracks.FindByTitle(ctx, normB)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	if !okA || !okB {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: fmt.Errorf("transform: adjacency endpoints not yet resolved")})
		return
	}

	lo, hi, selfLoop := model.Canonicalize(a.TrackID, b.TrackID)
	if selfLoop {
		// Drop self-loops silently: they're not malformed, just not a
		// real transition (spec.md §3 invariant: no self-loop).
		res.Processed = append(res.Processed, rec.ScrapeID)
		return
	}
	if err := tr.stores.Transitions.Upsert(ctx, lo, hi, p.Distance, rec.ScrapedAt); err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	res.Processed = append(res.Processed, rec.ScrapeID)
}

type trackArtistPayload struct {
	ArtistName string          `json:"artist_name"`
	TrackTitle string          `json:"track_title"`
	Role       model.ArtistRole `json:"role"`
}

func (tr *Transformer) processTrackArtist(ctx context.Context, rec model.RawScrape, res *Result) {
	var p trackArtistPayload
	if err := json.Unmarshal(rec.RawData, &p); err != nil || p.ArtistName == "" || p.TrackTitle == "" {
		res.SkippedInvalid = append(res.SkippedInvalid, rec.ScrapeID)
		return
	}
	role := p.Role
	if role == "" {
		role = model.RolePrimary
	}

	normalized := normalize.NormalizeArtist(p.ArtistName)
	artist, err := tr.stores.Artists.UpsertArtist(ctx, normalized, p.ArtistName, nil, rec.ScrapeID)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}

	normTitle := normalize.NormalizeTitleOnly(p.TrackTitle, false).Title
	track, ok, err := tr.resolveTrackForLink(ctx, p.ArtistName, normTitle)
	if err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	if !ok {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: fmt.Errorf("transform: track %q not yet resolved", p.TrackTitle)})
		return
	}

	if err := tr.stores.TrackArtists.Link(ctx, track.TrackID, artist.ArtistID, role); err != nil {
		res.Errors = append(res.Errors, ProcessError{ScrapeID: rec.ScrapeID, Err: err})
		return
	}
	res.Processed = append(res.Processed, rec.ScrapeID)
}

// naturalKeyHash derives a short, stable hash for payloads that need
// a deterministic secondary key beyond the record's own scrape_id
// (e.g. archiving oversized playlist HTML under a content-addressed
// name).
func naturalKeyHash(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
