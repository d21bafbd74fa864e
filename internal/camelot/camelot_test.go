package camelot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCamelot_SpotifyExample(t *testing.T) {
	// spec.md §8 scenario 1: key_pc=1 (C#), mode=0 (minor) -> "5A".
	code, err := ToCamelot(1, 0)
	assert.NoError(t, err)
	assert.Equal(t, Code("5A"), code)
}

func TestToCamelot_OutOfRange(t *testing.T) {
	_, err := ToCamelot(12, 0)
	assert.Error(t, err)
	_, err = ToCamelot(0, 2)
	assert.Error(t, err)
}

func TestToCamelotFromKeyName(t *testing.T) {
	code, ok := ToCamelotFromKeyName("C# minor")
	assert.True(t, ok)
	assert.Equal(t, Code("5A"), code)

	_, ok = ToCamelotFromKeyName("not a key")
	assert.False(t, ok)
}

func TestNeighbors(t *testing.T) {
	assert.ElementsMatch(t, []Code{"1A", "12A", "2A", "1B"}, Compatible("1A"))
	assert.ElementsMatch(t, []Code{"12B", "11B", "1B", "12A"}, Compatible("12B"))
}

func TestCompatibleContainsSelfAndFour(t *testing.T) {
	for _, c := range []Code{"1A", "6B", "12A"} {
		neighbors := Compatible(c)
		assert.Len(t, neighbors, 4)
		assert.Contains(t, neighbors, c)
	}
}

func TestCompatibilityScore(t *testing.T) {
	assert.Equal(t, 1.0, CompatibilityScore("5A", "5A"))
	assert.Equal(t, 0.8, CompatibilityScore("5A", "6A"))  // energy shift
	assert.Equal(t, 0.8, CompatibilityScore("5A", "5B"))  // mood shift
	assert.Equal(t, 0.5, CompatibilityScore("5A", "7A"))  // two steps
	assert.Equal(t, 0.3, CompatibilityScore("5A", "8A"))  // three steps
	assert.Equal(t, 0.3, CompatibilityScore("5A", "7B"))  // different letter, some distance
	assert.Equal(t, 0.0, CompatibilityScore("bad", "5A")) // unparseable
}

func TestCompatibilityScore_SixStepsSameLetter(t *testing.T) {
	// Farthest point on the same letter (distance 6) isn't in the rule
	// table's named bands, so it falls to the 0.0 default.
	assert.Equal(t, 0.0, CompatibilityScore("1A", "7A"))
}
