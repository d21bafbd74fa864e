package perr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus_NotFoundIsTerminal(t *testing.T) {
	err := FromHTTPStatus("spotify", "get track", 404)
	assert.Equal(t, KindNotFound, err.Kind)
	assert.False(t, err.Retriable)
}

func TestFromHTTPStatus_RateLimitedIsRetriable(t *testing.T) {
	err := FromHTTPStatus("spotify", "get track", 429)
	assert.Equal(t, KindRateLimited, err.Kind)
	assert.True(t, err.Retriable)
}

func TestFromHTTPStatus_ServerErrorIsRetriable(t *testing.T) {
	err := FromHTTPStatus("spotify", "get track", 503)
	assert.Equal(t, KindHTTP, err.Kind)
	assert.True(t, err.Retriable)
}

func TestFromHTTPStatus_ClientErrorIsTerminal(t *testing.T) {
	err := FromHTTPStatus("spotify", "get track", 400)
	assert.Equal(t, KindValidation, err.Kind)
	assert.False(t, err.Retriable)
}

func TestIsRetriable_WrappedError(t *testing.T) {
	base := New(KindTimeout, "musicbrainz", "lookup", errors.New("deadline exceeded"))
	wrapped := errors.New("enrichment failed")
	wrapped = errors.Join(wrapped, base)
	assert.True(t, IsRetriable(wrapped))
}

func TestIsRetriable_PlainErrorIsFalse(t *testing.T) {
	assert.False(t, IsRetriable(errors.New("plain")))
}

func TestError_MessageIncludesSourceAndOp(t *testing.T) {
	err := New(KindParse, "discogs", "parse release", errors.New("unexpected EOF"))
	assert.Contains(t, err.Error(), "discogs")
	assert.Contains(t, err.Error(), "parse release")
	assert.Contains(t, err.Error(), "unexpected EOF")
}
