package providers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/corvyn/setgraph/internal/enrich"
)

const discogsBaseURL = "https://api.discogs.com"

// DiscogsClient implements enrich.DiscogsProvider against the Discogs
// database API.
type DiscogsClient struct {
	c *client
}

func NewDiscogsClient(token string) *DiscogsClient {
	auth := func(req *http.Request) { req.Header.Set("Authorization", "Discogs token="+token) }
	return &DiscogsClient{c: newClient("discogs", discogsBaseURL, 1, 1, "setgraph/1.0", auth)}
}

type discogsResult struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Label       []string `json:"label"`
	ResourceURL string `json:"resource_url"`
}

type discogsSearchResponse struct {
	Results []discogsResult `json:"results"`
}

// Search finds the first release matching artist/title.
func (c *DiscogsClient) Search(ctx context.Context, artist, title string) (enrich.DiscogsRecord, bool, error) {
	q := url.Values{"artist": {artist}, "track": {title}, "type": {"release"}}
	var res discogsSearchResponse
	if err := c.c.get(ctx, "/database/search?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.DiscogsRecord{}, false, nil
		}
		return enrich.DiscogsRecord{}, false, err
	}
	if len(res.Results) == 0 {
		return enrich.DiscogsRecord{}, false, nil
	}
	r := res.Results[0]
	rec := enrich.DiscogsRecord{DiscogsID: itoa(r.ID), URL: r.ResourceURL}
	if len(r.Label) > 0 {
		rec.Label = r.Label[0]
	}
	return rec, true, nil
}
