package providers

import (
	"context"
	"net/url"
)

const getSongBPMBaseURL = "https://api.getsong.co"

// GetSongBPMClient implements enrich.GetSongBPMProvider, the
// waterfall's last-resort text-search BPM/key fallback.
type GetSongBPMClient struct {
	c      *client
	apiKey string
}

func NewGetSongBPMClient(apiKey string) *GetSongBPMClient {
	return &GetSongBPMClient{c: newClient("getsongbpm", getSongBPMBaseURL, 2, 2, "setgraph/1.0", nil), apiKey: apiKey}
}

type getSongBPMSearchResult struct {
	Search []struct {
		Tempo    string `json:"tempo"`
		KeyOf    string `json:"key_of"`
	} `json:"search"`
}

// SearchByText looks up BPM and key by free-text artist/title.
func (c *GetSongBPMClient) SearchByText(ctx context.Context, artist, title string) (*float64, *string, bool, error) {
	q := url.Values{
		"api_key": {c.apiKey},
		"type":    {"both"},
		"lookup":  {"song:" + title + " artist:" + artist},
	}
	var res getSongBPMSearchResult
	if err := c.c.get(ctx, "/search/?"+q.Encode(), &res); err != nil {
		if notFound(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	if len(res.Search) == 0 {
		return nil, nil, false, nil
	}
	first := res.Search[0]
	var bpm *float64
	if f, err := parseFloat(first.Tempo); err == nil {
		bpm = &f
	}
	var key *string
	if first.KeyOf != "" {
		key = &first.KeyOf
	}
	if bpm == nil && key == nil {
		return nil, nil, false, nil
	}
	return bpm, key, true, nil
}
