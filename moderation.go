package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// ModerationResult is the normalized classification output shared by the
// remote provider and the local fallback.
type ModerationResult struct {
	Categories   map[string]float64 `json:"categories"`
	ShouldFlag   bool               `json:"should_flag"`
	MaxRiskScore float64            `json:"max_risk_score"`
	Provider     string             `json:"provider"`
}

// Moderator classifies a piece of text before it reaches another user.
type Moderator interface {
	Moderate(ctx context.Context, text string) (*ModerationResult, error)
}

// newModerator picks the remote Hive moderator when a key is configured,
// otherwise the keyword fallback.
func newModerator(apiKey string) Moderator {
	if apiKey == "" {
		return keywordModerator{}
	}
	return newHiveModerator(apiKey)
}

// keywordModerator is the no-credentials fallback: flat keyword scan with
// a fixed high score per hit.
type keywordModerator struct{}

var highRiskKeywords = []string{
	"kill", "hurt", "suicide", "harm", "attack",
	"hate", "racist", "sexist", "nazi", "terrorist",
}

func (keywordModerator) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	lower := strings.ToLower(text)
	categories := map[string]float64{}
	for _, kw := range highRiskKeywords {
		if strings.Contains(lower, kw) {
			categories[kw] = 0.8
		}
	}

	result := &ModerationResult{
		Categories: categories,
		ShouldFlag: len(categories) > 0,
		Provider:   "fallback",
	}
	if result.ShouldFlag {
		result.MaxRiskScore = 0.8
	}
	return result, nil
}

const hiveSyncURL = "https://api.thehive.ai/api/v2/task/sync"

// Flagging threshold over the high-risk classes.
const hiveFlagThreshold = 0.7

var hiveHighRiskClasses = []string{"sexual_content", "self_harm", "violence", "hate_speech"}

type hiveModerator struct {
	apiKey   string
	client   *http.Client
	fallback Moderator
}

func newHiveModerator(apiKey string) *hiveModerator {
	return &hiveModerator{
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		fallback: keywordModerator{},
	}
}

func (h *hiveModerator) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	result, err := h.classify(ctx, text)
	if err != nil {
		// The remote provider is best effort; degrade to keywords.
		log.Println("Hive moderation failed, using fallback:", err)
		return h.fallback.Moderate(ctx, text)
	}
	return result, nil
}

func (h *hiveModerator) classify(ctx context.Context, text string) (*ModerationResult, error) {
	payload := map[string]any{
		"data":  map[string]string{"text": text},
		"tasks": []string{"classification"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hiveSyncURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hive status %d", resp.StatusCode)
	}

	var parsed struct {
		Status []struct {
			Response struct {
				Output []struct {
					Classes []struct {
						Class string  `json:"class"`
						Score float64 `json:"score"`
					} `json:"classes"`
				} `json:"output"`
			} `json:"response"`
		} `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Status) == 0 || len(parsed.Status[0].Response.Output) == 0 {
		return nil, fmt.Errorf("empty hive response")
	}

	categories := map[string]float64{}
	for _, cls := range parsed.Status[0].Response.Output[0].Classes {
		if cls.Class != "" && cls.Score != 0 {
			categories[cls.Class] = cls.Score
		}
	}

	maxRisk := 0.0
	for _, class := range hiveHighRiskClasses {
		if score := categories[class]; score > maxRisk {
			maxRisk = score
		}
	}

	return &ModerationResult{
		Categories:   categories,
		ShouldFlag:   maxRisk > hiveFlagThreshold,
		MaxRiskScore: maxRisk,
		Provider:     "hive",
	}, nil
}
