package bronze

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeyFromURI(t *testing.T) {
	key, err := objectKeyFromURI("setgraph-bronze", "gs://setgraph-bronze/spotify/track/abc-123")
	assert.NoError(t, err)
	assert.Equal(t, "spotify/track/abc-123", key)
}

func TestObjectKeyFromURI_WrongBucket(t *testing.T) {
	_, err := objectKeyFromURI("setgraph-bronze", "gs://other-bucket/spotify/track/abc-123")
	assert.Error(t, err)
}

func TestObjectKeyFromURI_Malformed(t *testing.T) {
	_, err := objectKeyFromURI("setgraph-bronze", "not-a-uri")
	assert.Error(t, err)
}

func TestMaxInlinePayload_IsOneMebibyte(t *testing.T) {
	assert.Equal(t, 1048576, MaxInlinePayload)
}
