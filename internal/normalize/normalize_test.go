package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTrackString_Basic(t *testing.T) {
	got := NormalizeTrackString("FISHER & Chris Lake - Losing It (Original Mix)")
	assert.Equal(t, "fisher and chris lake", got.Artist)
	assert.Equal(t, "losing it", got.Title)
	assert.Equal(t, "original mix", got.Version)
	assert.False(t, got.IsRemix)
}

func TestNormalizeTrackString_Remix(t *testing.T) {
	got := NormalizeTrackString("Disclosure feat. Sam Smith - Latch (MK Remix)")
	assert.Equal(t, "disclosure featuring sam smith", got.Artist)
	assert.Equal(t, "latch", got.Title)
	assert.Equal(t, "remix", got.RemixType)
	assert.True(t, got.IsRemix)
}

func TestNormalizeTrackString_NoSeparator(t *testing.T) {
	got := NormalizeTrackString("Just A Title With No Artist")
	assert.Equal(t, "", got.Artist)
	assert.Equal(t, "just a title with no artist", got.Title)
}

func TestNormalizeTrackString_Empty(t *testing.T) {
	got := NormalizeTrackString("")
	assert.Equal(t, Track{}, got)
}

func TestNormalizeTrackString_Collaborators(t *testing.T) {
	got := NormalizeTrackString("Artist A, Artist B x Artist C vs. Artist D - Title")
	assert.Equal(t, "artist a and artist b and artist c versus artist d", got.Artist)
}

func TestNormalizeTrackString_Idempotent(t *testing.T) {
	inputs := []string{
		"FISHER & Chris Lake - Losing It (Original Mix)",
		"Björk - Jóga",
		"some — title: with | many — separators",
		"",
		"VARIOUS ARTISTS",
	}
	for _, in := range inputs {
		once := NormalizeTrackString(in)
		twice := NormalizeTrackString(once.NormalizedFull)
		assert.Equal(t, foldAndCollapse(once.NormalizedFull), foldAndCollapse(twice.NormalizedFull),
			"re-normalizing %q should be stable", in)
	}
}

func TestNormalizeTrackString_UnicodeFold(t *testing.T) {
	got := NormalizeTrackString("Björk - Jóga")
	assert.Equal(t, "bjork", got.Artist)
	assert.Equal(t, "joga", got.Title)
}

func TestNormalizeArtist(t *testing.T) {
	assert.Equal(t, "fisher and chris lake", NormalizeArtist("FISHER & Chris Lake"))
}

func TestNormalizeTitleOnly(t *testing.T) {
	got := NormalizeTitleOnly("Losing It (Club Mix)", true)
	assert.Equal(t, "losing it", got.Title)
	assert.Equal(t, "club mix", got.Version)
	assert.False(t, got.IsRemix)

	got2 := NormalizeTitleOnly("Losing It (Club Mix)", false)
	assert.Contains(t, got2.Title, "club mix")
}

func TestExtractVersion_FirstMatchWins(t *testing.T) {
	rest, _, remixType, isRemix := extractVersion("Title (Extended Mix) (Remix)")
	assert.Equal(t, "extended_mix", remixType)
	assert.False(t, isRemix)
	assert.Contains(t, rest, "Remix") // second marker untouched
}

func TestClampBoundaries(t *testing.T) {
	got := NormalizeTrackString("   ")
	assert.Equal(t, "", got.Title)
}
