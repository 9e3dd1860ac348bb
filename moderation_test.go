package main

import (
	"context"
	"testing"
)

func TestKeywordModeratorFlags(t *testing.T) {
	mod := keywordModerator{}

	result, err := mod.Moderate(context.Background(), "I will HURT you")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if !result.ShouldFlag {
		t.Error("expected flagged result")
	}
	if result.Provider != "fallback" {
		t.Errorf("provider = %q, want fallback", result.Provider)
	}
	if result.MaxRiskScore != 0.8 {
		t.Errorf("max risk = %f, want 0.8", result.MaxRiskScore)
	}
	if score := result.Categories["hurt"]; score != 0.8 {
		t.Errorf("categories[hurt] = %f, want 0.8", score)
	}
}

func TestKeywordModeratorPassesCleanText(t *testing.T) {
	mod := keywordModerator{}

	result, err := mod.Moderate(context.Background(), "Want to grab coffee this weekend?")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if result.ShouldFlag {
		t.Errorf("clean text flagged: %+v", result.Categories)
	}
	if result.MaxRiskScore != 0 {
		t.Errorf("max risk = %f, want 0", result.MaxRiskScore)
	}
	if len(result.Categories) != 0 {
		t.Errorf("categories = %v, want empty", result.Categories)
	}
}

func TestNewModeratorSelection(t *testing.T) {
	if _, ok := newModerator("").(keywordModerator); !ok {
		t.Error("empty key should select the keyword fallback")
	}
	if _, ok := newModerator("some-key").(*hiveModerator); !ok {
		t.Error("configured key should select the Hive moderator")
	}
}
