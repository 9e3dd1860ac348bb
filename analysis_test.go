package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTraitScores(t *testing.T) {
	existing := map[string]float64{"openness": 0.6, "warmth": 0.4}
	fresh := map[string]float64{"openness": 0.8, "humor": 0.9}

	merged := mergeTraitScores(existing, fresh)

	assert.InDelta(t, 0.7, merged["openness"], 1e-9, "overlapping traits are averaged")
	assert.Equal(t, 0.4, merged["warmth"], "untouched traits are kept")
	assert.Equal(t, 0.9, merged["humor"], "new traits are taken as-is")

	// Inputs must not be mutated.
	assert.Equal(t, 0.6, existing["openness"])
}

func TestMergeTraitScoresEmptyExisting(t *testing.T) {
	fresh := map[string]float64{"openness": 0.75}

	merged := mergeTraitScores(nil, fresh)
	assert.Equal(t, fresh, merged)

	merged["openness"] = 0.1
	assert.Equal(t, 0.75, fresh["openness"], "merged map is a copy")
}

func TestAnalyzeTextOwnerOnly(t *testing.T) {
	// Rejected before any database access, so a nil handle is safe here.
	handler := analyzeTextHandler(nil, simulatedAnalysisProvider{})

	token, err := issueToken(1)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/analyze/text",
		strings.NewReader(`{"user_id": 2, "text": "hello"}`))
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	handler(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSimulatedProviderShapes(t *testing.T) {
	ctx := context.Background()
	provider := simulatedAnalysisProvider{}

	text, err := provider.AnalyzeText(ctx, "hello", "")
	require.NoError(t, err)
	assert.Len(t, text.TraitScores, 5)
	for trait, score := range text.TraitScores {
		assert.GreaterOrEqual(t, score, 0.0, trait)
		assert.LessOrEqual(t, score, 1.0, trait)
	}
	assert.NotEmpty(t, text.Suggestions)

	voice, err := provider.AnalyzeVoice(ctx, "audio/sample.wav")
	require.NoError(t, err)
	assert.Equal(t, 0.86, voice.OverallScore)
	assert.NotEmpty(t, voice.Transcription)

	sugg, err := provider.ChatSuggestions(ctx, nil, "hi")
	require.NoError(t, err)
	assert.Len(t, sugg.SuggestedResponses, 3)

	closure, err := provider.ClosureMessage(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, closure)
}
