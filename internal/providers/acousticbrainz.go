package providers

import "context"

const acousticBrainzBaseURL = "https://acousticbrainz.org/api/v1"

// AcousticBrainzClient implements enrich.AcousticBrainzProvider
// against AcousticBrainz's public, keyless API.
type AcousticBrainzClient struct {
	c *client
}

func NewAcousticBrainzClient() *AcousticBrainzClient {
	return &AcousticBrainzClient{c: newClient("acousticbrainz", acousticBrainzBaseURL, 2, 2, "setgraph/1.0", nil)}
}

type acousticBrainzLowLevel struct {
	Rhythm struct {
		BPM float64 `json:"bpm"`
	} `json:"rhythm"`
	Tonal struct {
		Key struct {
			Key   string `json:"key"`
			Scale string `json:"scale"`
		} `json:"key_key"`
	} `json:"tonal"`
}

// GetByMusicBrainzID fetches the low-level audio analysis for mbid.
func (c *AcousticBrainzClient) GetByMusicBrainzID(ctx context.Context, mbid string) (*float64, *string, bool, error) {
	var res acousticBrainzLowLevel
	if err := c.c.get(ctx, "/"+mbid+"/low-level", &res); err != nil {
		if notFound(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	var bpm *float64
	if res.Rhythm.BPM > 0 {
		b := res.Rhythm.BPM
		bpm = &b
	}
	var key *string
	if res.Tonal.Key.Key != "" {
		k := res.Tonal.Key.Key + " " + res.Tonal.Key.Scale
		key = &k
	}
	if bpm == nil && key == nil {
		return nil, nil, false, nil
	}
	return bpm, key, true, nil
}
