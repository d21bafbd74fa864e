package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/corvyn/setgraph/internal/enrich"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// SpotifyClient implements enrich.SpotifyProvider against the Spotify
// Web API. Authentication is a pre-obtained bearer token (client
// credentials / refresh handled outside this package; OAuth flows
// beyond bearer tokens are out of scope).
type SpotifyClient struct {
	c *client
}

// NewSpotifyClient builds a client authorized with token, rate-limited
// to Spotify's documented guidance of a handful of requests per second.
func NewSpotifyClient(token string) *SpotifyClient {
	auth := func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
	return &SpotifyClient{c: newClient("spotify", spotifyBaseURL, 5, 5, "setgraph/1.0", auth)}
}

type spotifyAudioFeatures struct {
	Tempo float64 `json:"tempo"`
	Key   int     `json:"key"`
	Mode  int     `json:"mode"`
}

type spotifyTrack struct {
	ID              string `json:"id"`
	DurationMs      int64  `json:"duration_ms"`
	ExternalIDs     struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
}

type spotifySearchResult struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

// pitchClassNames maps Spotify's 0-11 pitch class integer to a note name.
var pitchClassNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func spotifyKeyName(pitchClass, mode int) *string {
	if pitchClass < 0 || pitchClass > 11 {
		return nil
	}
	name := pitchClassNames[pitchClass]
	if mode == 0 {
		name += " minor"
	} else {
		name += " major"
	}
	return &name
}

func (s *SpotifyClient) toRecord(ctx context.Context, t spotifyTrack) enrich.SpotifyRecord {
	rec := enrich.SpotifyRecord{SpotifyID: t.ID, ISRC: t.ExternalIDs.ISRC}
	if t.DurationMs > 0 {
		d := t.DurationMs
		rec.DurationMs = &d
	}
	var feat spotifyAudioFeatures
	if err := s.c.get(ctx, "/audio-features/"+t.ID, &feat); err == nil {
		bpm := feat.Tempo
		rec.BPM = &bpm
		rec.Key = spotifyKeyName(feat.Key, feat.Mode)
	}
	return rec
}

// GetByID fetches track detail and audio features for a known Spotify ID.
func (s *SpotifyClient) GetByID(ctx context.Context, spotifyID string) (enrich.SpotifyRecord, error) {
	var t spotifyTrack
	if err := s.c.get(ctx, "/tracks/"+spotifyID, &t); err != nil {
		return enrich.SpotifyRecord{}, err
	}
	return s.toRecord(ctx, t), nil
}

// SearchByISRC finds the first track matching an ISRC.
func (s *SpotifyClient) SearchByISRC(ctx context.Context, isrc string) (enrich.SpotifyRecord, bool, error) {
	q := url.Values{"q": {"isrc:" + isrc}, "type": {"track"}, "limit": {"1"}}
	var res spotifySearchResult
	if err := s.c.get(ctx, "/search?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.SpotifyRecord{}, false, nil
		}
		return enrich.SpotifyRecord{}, false, err
	}
	if len(res.Tracks.Items) == 0 {
		return enrich.SpotifyRecord{}, false, nil
	}
	return s.toRecord(ctx, res.Tracks.Items[0]), true, nil
}

// SearchByText finds the first track matching artist/title free text.
func (s *SpotifyClient) SearchByText(ctx context.Context, artist, title string) (enrich.SpotifyRecord, bool, error) {
	q := url.Values{"q": {fmt.Sprintf("artist:%s track:%s", artist, title)}, "type": {"track"}, "limit": {"1"}}
	var res spotifySearchResult
	if err := s.c.get(ctx, "/search?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.SpotifyRecord{}, false, nil
		}
		return enrich.SpotifyRecord{}, false, err
	}
	if len(res.Tracks.Items) == 0 {
		return enrich.SpotifyRecord{}, false, nil
	}
	return s.toRecord(ctx, res.Tracks.Items[0]), true, nil
}
