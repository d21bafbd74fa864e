package providers

import (
	"context"
	"net/url"

	"github.com/corvyn/setgraph/internal/enrich"
)

const musicBrainzBaseURL = "https://musicbrainz.org"

// musicBrainzQPS mirrors the teacher's maxQPS constant in
// cmd/nup/metadata/musicbrainz.go, set by MusicBrainz's documented
// rate-limiting policy (one request per second, unauthenticated).
const musicBrainzQPS = 1

// MusicBrainzClient implements enrich.MusicBrainzProvider against the
// MusicBrainz web service, grounded directly on the teacher's api type
// in cmd/nup/metadata/musicbrainz.go (same base URL, same QPS, same
// user agent convention).
type MusicBrainzClient struct {
	c *client
}

func NewMusicBrainzClient() *MusicBrainzClient {
	return &MusicBrainzClient{c: newClient("musicbrainz", musicBrainzBaseURL, musicBrainzQPS, 1, "setgraph/1.0 ( https://github.com/corvyn/setgraph )", nil)}
}

type mbRecording struct {
	ID    string `json:"id"`
	ISRCs []string `json:"isrcs"`
}

type mbRecordingSearchResult struct {
	Recordings []mbRecording `json:"recordings"`
}

func toMBRecord(r mbRecording) enrich.MusicBrainzRecord {
	rec := enrich.MusicBrainzRecord{MusicBrainzID: r.ID}
	if len(r.ISRCs) > 0 {
		rec.ISRC = r.ISRCs[0]
	}
	return rec
}

// SearchByISRC looks up a recording by ISRC via the dedicated /isrc
// endpoint.
func (c *MusicBrainzClient) SearchByISRC(ctx context.Context, isrc string) (enrich.MusicBrainzRecord, bool, error) {
	var res mbRecordingSearchResult
	if err := c.c.get(ctx, "/ws/2/isrc/"+isrc+"?fmt=json", &res); err != nil {
		if notFound(err) {
			return enrich.MusicBrainzRecord{}, false, nil
		}
		return enrich.MusicBrainzRecord{}, false, err
	}
	if len(res.Recordings) == 0 {
		return enrich.MusicBrainzRecord{}, false, nil
	}
	return toMBRecord(res.Recordings[0]), true, nil
}

// SearchByText runs a Lucene-syntax recording search by artist/title.
func (c *MusicBrainzClient) SearchByText(ctx context.Context, artist, title string) (enrich.MusicBrainzRecord, bool, error) {
	q := url.Values{"query": {"artist:\"" + artist + "\" AND recording:\"" + title + "\""}, "fmt": {"json"}, "limit": {"1"}}
	var res mbRecordingSearchResult
	if err := c.c.get(ctx, "/ws/2/recording?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.MusicBrainzRecord{}, false, nil
		}
		return enrich.MusicBrainzRecord{}, false, err
	}
	if len(res.Recordings) == 0 {
		return enrich.MusicBrainzRecord{}, false, nil
	}
	return toMBRecord(res.Recordings[0]), true, nil
}
