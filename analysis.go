package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
)

// TextAnalysisResult is the structured output of a text personality pass.
type TextAnalysisResult struct {
	TraitScores map[string]float64 `json:"trait_scores"`
	Suggestions []string           `json:"suggestions"`
	KeyInsights []string           `json:"key_insights"`
}

// VoiceAnalysisResult is the structured output of a voice analysis pass.
type VoiceAnalysisResult struct {
	Transcription    string             `json:"transcription"`
	EmotionalFluency map[string]float64 `json:"emotional_fluency"`
	ToneAnalysis     map[string]float64 `json:"tone_analysis"`
	OverallScore     float64            `json:"overall_score"`
}

// ChatSuggestionResult carries tone feedback and reply options for a chat.
type ChatSuggestionResult struct {
	ToneAnalysis       map[string]any `json:"tone_analysis"`
	SuggestedResponses []string       `json:"suggested_responses"`
	EmotionalNotes     []string       `json:"emotional_intelligence_notes"`
}

// AnalysisProvider is the external AI collaborator, consumed as an opaque
// function family returning structured data.
type AnalysisProvider interface {
	AnalyzeText(ctx context.Context, text, userContext string) (*TextAnalysisResult, error)
	AnalyzeVoice(ctx context.Context, audioKey string) (*VoiceAnalysisResult, error)
	ChatSuggestions(ctx context.Context, history []ChatMessage, current string) (*ChatSuggestionResult, error)
	ClosureMessage(ctx context.Context, history []ChatMessage) (string, error)
}

// simulatedAnalysisProvider returns fixed structured responses in place of
// a live model call, so the rest of the pipeline can be exercised without
// an API key.
type simulatedAnalysisProvider struct{}

func (simulatedAnalysisProvider) AnalyzeText(ctx context.Context, text, userContext string) (*TextAnalysisResult, error) {
	return &TextAnalysisResult{
		TraitScores: map[string]float64{
			"openness":          0.75,
			"conscientiousness": 0.82,
			"extraversion":      0.68,
			"agreeableness":     0.88,
			"neuroticism":       0.42,
		},
		Suggestions: []string{
			"Try to be more specific about your interests",
			"Consider asking more open-ended questions",
		},
		KeyInsights: []string{
			"Shows genuine interest in others",
			"Values meaningful conversations",
		},
	}, nil
}

func (simulatedAnalysisProvider) AnalyzeVoice(ctx context.Context, audioKey string) (*VoiceAnalysisResult, error) {
	return &VoiceAnalysisResult{
		Transcription: "This is a simulated transcription of the audio content.",
		EmotionalFluency: map[string]float64{
			"clarity":      0.85,
			"confidence":   0.78,
			"warmth":       0.92,
			"authenticity": 0.88,
		},
		ToneAnalysis: map[string]float64{
			"friendly": 0.9,
			"engaging": 0.85,
			"sincere":  0.87,
		},
		OverallScore: 0.86,
	}, nil
}

func (simulatedAnalysisProvider) ChatSuggestions(ctx context.Context, history []ChatMessage, current string) (*ChatSuggestionResult, error) {
	return &ChatSuggestionResult{
		ToneAnalysis: map[string]any{
			"emotional_tone":   "curious",
			"engagement_level": "high",
			"positivity_score": 0.85,
		},
		SuggestedResponses: []string{
			"That's really interesting! Tell me more about what inspired that perspective.",
			"I appreciate you sharing that. How did that experience make you feel?",
			"That's a fascinating point. What do you think would happen if...",
		},
		EmotionalNotes: []string{
			"Shows good listening skills",
			"Demonstrates curiosity about others",
		},
	}, nil
}

func (simulatedAnalysisProvider) ClosureMessage(ctx context.Context, history []ChatMessage) (string, error) {
	return "Thank you for our conversation. I've genuinely appreciated getting to know you and wish you the best in finding what you're looking for.", nil
}

// mergeTraitScores folds freshly analyzed scores into the existing vector.
// Overlapping traits are averaged with the previous value; new traits are
// taken as-is.
func mergeTraitScores(existing, fresh map[string]float64) map[string]float64 {
	if len(existing) == 0 {
		merged := make(map[string]float64, len(fresh))
		for trait, score := range fresh {
			merged[trait] = score
		}
		return merged
	}
	merged := make(map[string]float64, len(existing)+len(fresh))
	for trait, score := range existing {
		merged[trait] = score
	}
	for trait, score := range fresh {
		if prev, ok := merged[trait]; ok {
			merged[trait] = (prev + score) / 2
		} else {
			merged[trait] = score
		}
	}
	return merged
}

// POST /analyze/text {"user_id": 1, "text": "..."}
func analyzeTextHandler(db *sql.DB, provider AnalysisProvider) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		var req struct {
			UserID int    `json:"user_id"`
			Text   string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		// The analysis rewrites the user's authoritative trait vector;
		// only the account owner may trigger that.
		if r.Context().Value(userIDKey).(int) != req.UserID {
			writeError(w, http.StatusForbidden, "not_authorized")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "missing_text")
			return
		}

		var fullName string
		var traitsRaw []byte
		err := db.QueryRowContext(r.Context(), `
			SELECT COALESCE(full_name, ''), trait_scores FROM users WHERE id = $1
		`, req.UserID).Scan(&fullName, &traitsRaw)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "not_found")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		existing := map[string]float64{}
		_ = json.Unmarshal(traitsRaw, &existing)

		result, err := provider.AnalyzeText(r.Context(),
			req.Text, fmt.Sprintf("User: %s, Traits: %v", fullName, existing))
		if err != nil {
			log.Println("Text analysis failed:", err)
			writeError(w, http.StatusInternalServerError, "analysis_failed")
			return
		}

		merged := mergeTraitScores(existing, result.TraitScores)

		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			mergedJSON, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`UPDATE users SET trait_scores = $1 WHERE id = $2`,
				mergedJSON, req.UserID); err != nil {
				return err
			}
			freshJSON, err := json.Marshal(result.TraitScores)
			if err != nil {
				return err
			}
			suggestionsJSON, err := json.Marshal(result.Suggestions)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`
				INSERT INTO text_analysis (user_id, text_content, trait_scores, suggestions)
				VALUES ($1, $2, $3, $4)
			`, req.UserID, req.Text, freshJSON, suggestionsJSON)
			return err
		})
		if err != nil {
			log.Println("Error persisting text analysis:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"analysis":       result,
			"updated_traits": merged,
		})
	})
}

// POST /users/{id}/voice-analysis (multipart form, field name: "audio_file")
func voiceAnalysisHandler(db *sql.DB, provider AnalysisProvider, w http.ResponseWriter, r *http.Request, userID int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		return
	}

	var exists bool
	if err := db.QueryRowContext(r.Context(),
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := r.ParseMultipartForm(12 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large_or_missing")
		return
	}
	f, hdr, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer f.Close()

	ext := filepath.Ext(hdr.Filename)
	if ext == "" {
		ext = ".audio"
	}
	key := filepath.Join("audio", uuid.NewString()+ext)
	if err := saveUpload(f, key); err != nil {
		log.Println("Error saving audio file:", err)
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	result, err := provider.AnalyzeVoice(r.Context(), key)
	if err != nil {
		log.Println("Voice analysis failed:", err)
		writeError(w, http.StatusInternalServerError, "analysis_failed")
		return
	}

	fluencyJSON, err := json.Marshal(result.EmotionalFluency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode_error")
		return
	}
	toneJSON, err := json.Marshal(result.ToneAnalysis)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode_error")
		return
	}
	_, err = db.ExecContext(r.Context(), `
		INSERT INTO voice_analysis (user_id, audio_key, transcription, emotional_fluency, tone_analysis, overall_score)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID, key, result.Transcription, fluencyJSON, toneJSON, result.OverallScore)
	if err != nil {
		log.Println("Error persisting voice analysis:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"analysis":  result,
		"audio_url": "/uploads/" + filepath.ToSlash(key),
	})
}
