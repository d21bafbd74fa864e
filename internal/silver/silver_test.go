package silver

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/corvyn/setgraph/internal/model"
)

func TestNormalizedArtistKey_Lowercases(t *testing.T) {
	assert.Equal(t, "deadmau5", normalizedArtistKey("Deadmau5"))
	assert.Equal(t, "b2b", normalizedArtistKey("B2B"))
}

func TestNotFoundAsFalse_NoRows(t *testing.T) {
	track, ok, err := notFoundAsFalse(model.Track{}, pgx.ErrNoRows)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.Track{}, track)
}

func TestNotFoundAsFalse_OtherError(t *testing.T) {
	wantErr := errors.New("connection reset")
	_, ok, err := notFoundAsFalse(model.Track{}, wantErr)
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, ok)
}

func TestNotFoundAsFalse_Found(t *testing.T) {
	track := model.Track{Title: "Strobe"}
	got, ok, err := notFoundAsFalse(track, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, track, got)
}

func TestNotFoundPlaylistAsFalse_NoRows(t *testing.T) {
	playlist, ok, err := notFoundPlaylistAsFalse(model.Playlist{}, pgx.ErrNoRows)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.Playlist{}, playlist)
}

func TestNotFoundPlaylistAsFalse_Found(t *testing.T) {
	playlist := model.Playlist{Name: "Essential Mix"}
	got, ok, err := notFoundPlaylistAsFalse(playlist, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, playlist, got)
}
