package providers

import (
	"context"
	"net/url"
	"strconv"

	"github.com/corvyn/setgraph/internal/enrich"
)

const lastFMBaseURL = "https://ws.audioscrobbler.com/2.0"

// LastFMClient implements enrich.LastFMProvider against the Last.fm
// track.getInfo API, authenticated with an API key query parameter
// rather than a bearer token (Last.fm's own convention).
type LastFMClient struct {
	c      *client
	apiKey string
}

func NewLastFMClient(apiKey string) *LastFMClient {
	return &LastFMClient{c: newClient("lastfm", lastFMBaseURL, 5, 5, "setgraph/1.0", nil), apiKey: apiKey}
}

type lastFMTag struct {
	Name string `json:"name"`
}

type lastFMTrackInfo struct {
	Track struct {
		URL       string `json:"url"`
		Listeners string `json:"listeners"`
		Toptags   struct {
			Tag []lastFMTag `json:"tag"`
		} `json:"toptags"`
	} `json:"track"`
}

// Search looks up track.getInfo by artist/title.
func (c *LastFMClient) Search(ctx context.Context, artist, title string) (enrich.LastFMRecord, bool, error) {
	q := url.Values{
		"method":  {"track.getInfo"},
		"api_key": {c.apiKey},
		"artist":  {artist},
		"track":   {title},
		"format":  {"json"},
	}
	var res lastFMTrackInfo
	if err := c.c.get(ctx, "/?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.LastFMRecord{}, false, nil
		}
		return enrich.LastFMRecord{}, false, err
	}
	if res.Track.URL == "" {
		return enrich.LastFMRecord{}, false, nil
	}
	rec := enrich.LastFMRecord{URL: res.Track.URL}
	if n, err := strconv.ParseFloat(res.Track.Listeners, 64); err == nil {
		rec.Popularity = n
	}
	for _, t := range res.Track.Toptags.Tag {
		rec.Tags = append(rec.Tags, t.Name)
	}
	return rec, true, nil
}
