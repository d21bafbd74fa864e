// Package model defines the bronze and silver entities shared across
// setgraph's components. It has no dependencies beyond the standard
// library and github.com/google/uuid, since it's imported by nearly
// every other package.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies a third-party site or service that setgraph scrapes
// or queries.
type Source string

// Sources modeled by the platform. Each one keys package source's
// adapter Registry; no concrete adapter is registered for any of them.
const (
	Source1001Tracklists Source = "1001tracklists"
	SourceMixesDB         Source = "mixesdb"
	SourceSetlistFM        Source = "setlistfm"
	SourceReddit           Source = "reddit"
	SourceSpotify          Source = "spotify"
	SourceTidal            Source = "tidal"
	SourceMusicBrainz      Source = "musicbrainz"
	SourceDiscogs          Source = "discogs"
	SourceLastFM           Source = "lastfm"
	SourceAcousticBrainz   Source = "acousticbrainz"
	SourceGetSongBPM       Source = "getsongbpm"
	SourceBeatport         Source = "beatport"
	SourceAppleMusic       Source = "apple_music"
	SourceSoundCloud       Source = "soundcloud"
	SourceDeezer           Source = "deezer"
	SourceYouTubeMusic     Source = "youtube_music"
)

// AllSources lists every source known to the platform, in a stable order.
var AllSources = []Source{
	Source1001Tracklists, SourceMixesDB, SourceSetlistFM, SourceReddit,
	SourceSpotify, SourceTidal, SourceMusicBrainz, SourceDiscogs,
	SourceLastFM, SourceAcousticBrainz, SourceGetSongBPM, SourceBeatport,
	SourceAppleMusic, SourceSoundCloud, SourceDeezer, SourceYouTubeMusic,
}

// ScrapeType identifies the shape of a RawScrape's payload. The
// transformer switches on this tag rather than using an open class
// hierarchy (spec.md §9).
type ScrapeType string

const (
	ScrapeArtist         ScrapeType = "artist"
	ScrapeTrack          ScrapeType = "track"
	ScrapePlaylist       ScrapeType = "playlist"
	ScrapePlaylistTrack  ScrapeType = "playlist_track"
	ScrapeTrackArtist    ScrapeType = "track_artist"
	ScrapeTrackAdjacency ScrapeType = "track_adjacency"
)

// RawScrape is a bronze-layer record: one verbatim, never-mutated
// scrape result. Dedup key is (Source, ScrapeType, NaturalKey).
type RawScrape struct {
	ScrapeID    uuid.UUID  `db:"scrape_id"`
	Source      Source     `db:"source"`
	ScrapeType  ScrapeType `db:"scrape_type"`
	NaturalKey  string     `db:"natural_key"` // dedup key, e.g. URL hash
	RawData     []byte     `db:"raw_data"`    // opaque JSON payload
	ArchiveURI  string     `db:"archive_uri"` // set if RawData overflowed to blob storage
	ScrapedAt   time.Time  `db:"scraped_at"`
	Processed   bool       `db:"processed"`
	ProcessedAt *time.Time `db:"processed_at"`
}

// ArtistRole describes how an artist relates to a track.
type ArtistRole string

const (
	RolePrimary  ArtistRole = "primary"
	RoleFeatured ArtistRole = "featured"
	RoleRemixer  ArtistRole = "remixer"
	RoleProducer ArtistRole = "producer"
)

// Track is a silver-layer canonical recording.
type Track struct {
	TrackID    uuid.UUID `db:"track_id"`
	Title      string    `db:"title"`
	NormTitle  string    `db:"normalized_title"`
	ArtistName string    `db:"artist_name"` // denormalized primary artist

	DurationMs *int64   `db:"duration_ms"`
	BPM        *float64 `db:"bpm"`
	Key        *string  `db:"key"`         // e.g. "C# minor"
	CamelotKey *string  `db:"camelot_key"` // e.g. "5A"
	Genre      *string  `db:"genre"`
	Label      *string  `db:"label"`

	ISRC           *string `db:"isrc"`
	SpotifyID      *string `db:"spotify_id"`
	TidalID        *string `db:"tidal_id"`
	MusicBrainzID  *string `db:"musicbrainz_id"`
	DiscogsID      *string `db:"discogs_id"`
	BeatportID     *string `db:"beatport_id"`

	IsRemix   bool    `db:"is_remix"`
	RemixType *string `db:"remix_type"` // e.g. "extended", "vip", "bootleg"; set only when IsRemix
	TrackType *string `db:"track_type"` // e.g. "original", "remix", "mashup", "edit"
	IsMashup  bool    `db:"is_mashup"`
	IsLive    bool    `db:"is_live"`
	IsCover   bool    `db:"is_cover"`

	DataQualityScore float64 `db:"data_quality_score"`
	ValidationStatus string  `db:"validation_status"` // valid|warning|needs_review

	BronzeIDs []uuid.UUID `db:"bronze_ids"` // lineage: bronze scrapes that contributed

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Artist is a silver-layer canonical artist.
type Artist struct {
	ArtistID       uuid.UUID `db:"artist_id"`
	CanonicalName  string    `db:"canonical_name"`
	NormalizedName string    `db:"normalized_name"` // lowercase, separator-standardized, unique

	Aliases []string `db:"aliases"`

	SpotifyID     *string `db:"spotify_id"`
	TidalID       *string `db:"tidal_id"`
	MusicBrainzID *string `db:"musicbrainz_id"`
	DiscogsID     *string `db:"discogs_id"`

	BronzeIDs []uuid.UUID `db:"bronze_ids"` // lineage, not ownership

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Playlist is a silver-layer set/mix/tracklist.
type Playlist struct {
	PlaylistID uuid.UUID  `db:"playlist_id"`
	Name       string     `db:"name"`
	Source     Source     `db:"source"`
	SourceURL  *string    `db:"source_url"`
	DJArtistID *uuid.UUID `db:"dj_artist_id"`
	EventDate  *time.Time `db:"event_date"`
	Venue      *string    `db:"venue"`

	TrackCount       int     `db:"track_count"`
	DataQualityScore float64 `db:"data_quality_score"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PlaylistTrack pins a track to a zero-based, monotonic position within
// a playlist. Unique on (PlaylistID, Position).
type PlaylistTrack struct {
	PlaylistID uuid.UUID `db:"playlist_id"`
	Position   int       `db:"position"`
	TrackID    uuid.UUID `db:"track_id"`
}

// TrackTransition is an unordered, counted adjacency edge derived from
// playlist sequences. TrackA must always be < TrackB (canonicalized by
// id ordering); see Canonicalize.
type TrackTransition struct {
	TrackA          uuid.UUID `db:"track_a"`
	TrackB          uuid.UUID `db:"track_b"`
	OccurrenceCount int       `db:"occurrence_count"`
	AvgDistance     float64   `db:"avg_distance"`
	LastObservedAt  time.Time `db:"last_observed_at"`
}

// Canonicalize orders (a, b) so TrackA < TrackB and reports whether they
// formed a self-loop (which callers must drop).
func Canonicalize(a, b uuid.UUID) (lo, hi uuid.UUID, selfLoop bool) {
	if a == b {
		return a, b, true
	}
	if a.String() < b.String() {
		return a, b, false
	}
	return b, a, false
}

// EnrichmentState is the lifecycle status of a track's enrichment.
type EnrichmentState string

const (
	EnrichmentPending   EnrichmentState = "pending"
	EnrichmentCompleted EnrichmentState = "completed"
	EnrichmentPartial   EnrichmentState = "partial"
	EnrichmentFailed    EnrichmentState = "failed"
)

// ConfidenceTier buckets a numeric confidence score.
type ConfidenceTier string

const (
	TierHigh       ConfidenceTier = "high"
	TierMedium     ConfidenceTier = "medium"
	TierLow        ConfidenceTier = "low"
	TierUnreliable ConfidenceTier = "unreliable"
)

// Tier buckets a confidence score per spec.md §4.9.
func Tier(confidence float64) ConfidenceTier {
	switch {
	case confidence >= 0.85:
		return TierHigh
	case confidence >= 0.70:
		return TierMedium
	case confidence >= 0.50:
		return TierLow
	default:
		return TierUnreliable
	}
}

// EnrichmentStatus records the per-track outcome of the C9 waterfall.
type EnrichmentStatus struct {
	TrackID         uuid.UUID       `db:"track_id"`
	Status          EnrichmentState `db:"status"`
	SourcesEnriched []Source        `db:"sources_enriched"`
	RetryCount      int             `db:"retry_count"`
	LastAttempt     time.Time       `db:"last_attempt"`
	IsRetriable     bool            `db:"is_retriable"`
	ErrorMessage    *string         `db:"error_message"`
	ConfidenceScore float64         `db:"confidence_score"`
	ConfidenceTier  ConfidenceTier  `db:"confidence_tier"`
}

// ClampBPM clamps a BPM reading into the valid [60, 200] range per
// spec.md §3's Track invariant and §8's boundary-behavior property.
func ClampBPM(bpm float64) float64 {
	switch {
	case bpm < 60:
		return 60
	case bpm > 200:
		return 200
	default:
		return bpm
	}
}
