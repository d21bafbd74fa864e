package providers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/corvyn/setgraph/internal/enrich"
)

const tidalBaseURL = "https://openapi.tidal.com/v2"

// TidalClient implements enrich.TidalProvider against Tidal's Open API.
type TidalClient struct {
	c *client
}

// NewTidalClient builds a client authorized with a bearer token.
func NewTidalClient(token string) *TidalClient {
	auth := func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
	return &TidalClient{c: newClient("tidal", tidalBaseURL, 5, 5, "setgraph/1.0", auth)}
}

type tidalTrackAttrs struct {
	ISRC string `json:"isrc"`
}

type tidalTrack struct {
	ID         string          `json:"id"`
	Attributes tidalTrackAttrs `json:"attributes"`
}

type tidalSearchResult struct {
	Data []tidalTrack `json:"data"`
}

func toTidalRecord(t tidalTrack) enrich.TidalRecord {
	return enrich.TidalRecord{TidalID: t.ID, ISRC: t.Attributes.ISRC}
}

// SearchByISRC finds the first track matching an ISRC.
func (c *TidalClient) SearchByISRC(ctx context.Context, isrc string) (enrich.TidalRecord, bool, error) {
	q := url.Values{"filter[isrc]": {isrc}}
	var res tidalSearchResult
	if err := c.c.get(ctx, "/tracks?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.TidalRecord{}, false, nil
		}
		return enrich.TidalRecord{}, false, err
	}
	if len(res.Data) == 0 {
		return enrich.TidalRecord{}, false, nil
	}
	return toTidalRecord(res.Data[0]), true, nil
}

// SearchByText finds the first track matching artist/title free text.
func (c *TidalClient) SearchByText(ctx context.Context, artist, title string) (enrich.TidalRecord, bool, error) {
	q := url.Values{"filter[query]": {artist + " " + title}}
	var res tidalSearchResult
	if err := c.c.get(ctx, "/searchresults?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return enrich.TidalRecord{}, false, nil
		}
		return enrich.TidalRecord{}, false, err
	}
	if len(res.Data) == 0 {
		return enrich.TidalRecord{}, false, nil
	}
	return toTidalRecord(res.Data[0]), true, nil
}
