package enrich

import "context"

// SpotifyRecord is what Spotify detail/search calls return.
type SpotifyRecord struct {
	SpotifyID   string
	ISRC        string
	BPM         *float64
	Key         *string // e.g. "C# minor"
	DurationMs  *int64
}

// SpotifyProvider is the subset of the Spotify API the waterfall needs.
type SpotifyProvider interface {
	GetByID(ctx context.Context, spotifyID string) (SpotifyRecord, error)
	SearchByISRC(ctx context.Context, isrc string) (SpotifyRecord, bool, error)
	SearchByText(ctx context.Context, artist, title string) (SpotifyRecord, bool, error)
}

// TidalRecord is what Tidal search calls return.
type TidalRecord struct {
	TidalID string
	ISRC    string
}

// TidalProvider is the subset of the Tidal API the waterfall needs.
type TidalProvider interface {
	SearchByISRC(ctx context.Context, isrc string) (TidalRecord, bool, error)
	SearchByText(ctx context.Context, artist, title string) (TidalRecord, bool, error)
}

// MusicBrainzRecord is what MusicBrainz lookups return.
type MusicBrainzRecord struct {
	MusicBrainzID string
	ISRC          string
}

// MusicBrainzProvider is the subset of the MusicBrainz API the
// waterfall needs.
type MusicBrainzProvider interface {
	SearchByISRC(ctx context.Context, isrc string) (MusicBrainzRecord, bool, error)
	SearchByText(ctx context.Context, artist, title string) (MusicBrainzRecord, bool, error)
}

// DiscogsRecord is release/label metadata from a Discogs search.
type DiscogsRecord struct {
	DiscogsID string
	Label     string
	URL       string
}

// DiscogsProvider searches Discogs for release/label metadata.
type DiscogsProvider interface {
	Search(ctx context.Context, artist, title string) (DiscogsRecord, bool, error)
}

// LastFMRecord is tag/popularity metadata from Last.fm.
type LastFMRecord struct {
	Tags       []string
	URL        string
	Popularity float64
}

// LastFMProvider searches Last.fm for tags and popularity.
type LastFMProvider interface {
	Search(ctx context.Context, artist, title string) (LastFMRecord, bool, error)
}

// AcousticBrainzProvider fills in audio features (BPM, key) by
// MusicBrainz ID, as a fallback when no other source has them.
type AcousticBrainzProvider interface {
	GetByMusicBrainzID(ctx context.Context, mbid string) (bpm *float64, key *string, found bool, err error)
}

// GetSongBPMProvider is a last-resort text-search fallback for BPM
// and key.
type GetSongBPMProvider interface {
	SearchByText(ctx context.Context, artist, title string) (bpm *float64, key *string, found bool, err error)
}

// Providers bundles every external client the waterfall calls. A nil
// field means that step of the waterfall is skipped entirely (graceful
// degradation — the same posture spec.md §4.3 requires of the fuzzy
// matcher for a missing similarity library).
type Providers struct {
	Spotify        SpotifyProvider
	Tidal          TidalProvider
	MusicBrainz    MusicBrainzProvider
	Discogs        DiscogsProvider
	LastFM         LastFMProvider
	AcousticBrainz AcousticBrainzProvider
	GetSongBPM     GetSongBPMProvider
}
