package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_Exact(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Artist: "FISHER", Title: "Losing It"},
		{ID: "2", Artist: "Disclosure", Title: "Latch"},
	}
	got, ok := Match("Fisher", "losing it", candidates)
	assert.True(t, ok)
	assert.Equal(t, "1", got.Candidate.ID)
	assert.Equal(t, StageExact, got.Stage)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestMatch_HighFuzzy(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Artist: "Chris Lake", Title: "Losing It"},
	}
	got, ok := Match("Chris Lakee", "Losing Itt", candidates)
	assert.True(t, ok)
	assert.Equal(t, "1", got.Candidate.ID)
	assert.GreaterOrEqual(t, got.Confidence, stageThreshold[StageHighFuzzy])
}

func TestMatch_TokenSet(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Artist: "Eric Prydz", Title: "Opus"},
	}
	// Word order scrambled: exact/high-fuzzy sequence similarity is weak,
	// but the token set is identical, so token_set_ratio scores 1.0.
	got, ok := Match("Opus Eric", "Prydz", candidates)
	require.True(t, ok)
	assert.Equal(t, StageTokenSet, got.Stage)
}

func TestMatch_TokenSet_CandidateIsSubsetOfQuery(t *testing.T) {
	// spec.md §8 scenario 2: the query carries an extra collaborator
	// ("and Chris Lake") the candidate doesn't. Plain Jaccard penalizes
	// this through its union denominator (0.5, below every threshold);
	// token_set_ratio rewards the candidate-is-subset case and scores
	// 1.0, which no later, looser stage can beat.
	candidates := []Candidate{
		{ID: "1", Artist: "FISHER", Title: "Losing It"},
	}
	got, ok := Match("fisher and chris lake", "losing it", candidates)
	require.True(t, ok)
	assert.Equal(t, "1", got.Candidate.ID)
	assert.Equal(t, StageTokenSet, got.Stage)
	assert.GreaterOrEqual(t, got.Confidence, stageThreshold[StageTokenSet])
}

func TestMatch_NoCandidateMeetsFloor(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Artist: "Totally Different Artist", Title: "Totally Different Title"},
	}
	_, ok := Match("Some Artist", "Some Title", candidates)
	assert.False(t, ok)
}

func TestMatch_EmptyCandidates(t *testing.T) {
	_, ok := Match("Artist", "Title", nil)
	assert.False(t, ok)
}

func TestMatch_TieBreakPrefersEarlierStage(t *testing.T) {
	// A candidate identical after normalization should win via StageExact
	// even though it would also pass later, looser stages.
	candidates := []Candidate{
		{ID: "1", Artist: "Artist", Title: "Title"},
	}
	got, ok := Match("ARTIST", "title", candidates)
	assert.True(t, ok)
	assert.Equal(t, StageExact, got.Stage)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, ratio("", ""))
	assert.Equal(t, 1.0, ratio("same", "same"))
	assert.Less(t, ratio("kitten", "sitting"), 1.0)
}

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 1.0, tokenSetRatio("", ""))
	assert.Equal(t, 1.0, tokenSetRatio("a b c", "c b a"))
	assert.Equal(t, 1.0, tokenSetRatio("fisher and chris lake", "fisher"), "candidate token set is a subset of the query")
	assert.Less(t, tokenSetRatio("a b", "c d"), 0.5)
}

func TestMatchArtist_CanonicalName(t *testing.T) {
	candidates := []ArtistCandidate{
		{ID: "1", Name: "FISHER"},
		{ID: "2", Name: "Chris Lake"},
	}
	got, conf, ok := MatchArtist("Fisher", candidates)
	assert.True(t, ok)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, 1.0, conf)
}

func TestMatchArtist_Alias(t *testing.T) {
	candidates := []ArtistCandidate{
		{ID: "1", Name: "The Martinez Brothers", Aliases: []string{"TMB"}},
	}
	got, _, ok := MatchArtist("TMB", candidates)
	assert.True(t, ok)
	assert.Equal(t, "1", got.ID)
}

func TestMatchArtist_BelowFloor(t *testing.T) {
	candidates := []ArtistCandidate{
		{ID: "1", Name: "Totally Unrelated Name"},
	}
	_, _, ok := MatchArtist("Some Other Artist", candidates)
	assert.False(t, ok)
}
