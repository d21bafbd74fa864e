package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvyn/setgraph/internal/perr"
)

func TestClient_Get_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, 100, 10, "ua", nil)
	var dst struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.get(context.Background(), "/x", &dst))
	assert.Equal(t, 42, dst.Value)
}

func TestClient_Get_404IsNotFoundNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, 100, 10, "ua", nil)
	c.retryDelay = 0
	var dst struct{}
	err := c.get(context.Background(), "/x", &dst)
	require.Error(t, err)
	assert.True(t, notFound(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "404 must not be retried")
}

func TestClient_Get_ServerErrorRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, 100, 10, "ua", nil)
	c.retryDelay = 0
	var dst struct{}
	err := c.get(context.Background(), "/x", &dst)
	require.Error(t, err)
	var pe *perr.Error
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retriable)
	assert.EqualValues(t, defaultMaxTries, atomic.LoadInt32(&calls))
}

func TestClient_Get_SucceedsAfterTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"value": 7}`))
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, 100, 10, "ua", nil)
	c.retryDelay = 0
	var dst struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.get(context.Background(), "/x", &dst))
	assert.Equal(t, 7, dst.Value)
}

func TestClient_AuthHeaderApplied(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, 100, 10, "ua", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer tok")
	})
	var dst struct{}
	require.NoError(t, c.get(context.Background(), "/x", &dst))
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestSpotifyKeyName_MapsModeAndPitchClass(t *testing.T) {
	name := spotifyKeyName(0, 0)
	require.NotNil(t, name)
	assert.Equal(t, "C minor", *name)

	name = spotifyKeyName(9, 1)
	require.NotNil(t, name)
	assert.Equal(t, "A major", *name)

	assert.Nil(t, spotifyKeyName(-1, 0))
}

func TestToMBRecord_FirstISRCUsed(t *testing.T) {
	rec := toMBRecord(mbRecording{ID: "mb-1", ISRCs: []string{"US1", "US2"}})
	assert.Equal(t, "mb-1", rec.MusicBrainzID)
	assert.Equal(t, "US1", rec.ISRC)
}

func TestToTidalRecord(t *testing.T) {
	rec := toTidalRecord(tidalTrack{ID: "t-1", Attributes: tidalTrackAttrs{ISRC: "GB1"}})
	assert.Equal(t, "t-1", rec.TidalID)
	assert.Equal(t, "GB1", rec.ISRC)
}
