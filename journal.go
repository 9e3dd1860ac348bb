package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type journalEntryRequest struct {
	Content string `json:"content"`
	Mood    string `json:"mood"`
}

// Dispatcher for /journal/{user_id}[/entries/{entry_id} | /analysis | /insights]
func journalDispatcher(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "journal" {
			http.NotFound(w, r)
			return
		}
		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		// Journals are private; owner only.
		if r.Context().Value(userIDKey).(int) != userID {
			writeError(w, http.StatusForbidden, "not_authorized")
			return
		}

		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			listJournalEntries(db, w, r, userID)
		case len(parts) == 2 && r.Method == http.MethodPost:
			createJournalEntry(db, w, r, userID)
		case len(parts) == 3 && parts[2] == "analysis" && r.Method == http.MethodGet:
			journalAnalysis(db, w, r, userID)
		case len(parts) == 3 && parts[2] == "insights" && r.Method == http.MethodGet:
			journalInsights(db, w, r, userID)
		case len(parts) == 4 && parts[2] == "entries":
			entryID, err := strconv.Atoi(parts[3])
			if err != nil {
				http.NotFound(w, r)
				return
			}
			switch r.Method {
			case http.MethodPut:
				updateJournalEntry(db, w, r, userID, entryID)
			case http.MethodDelete:
				deleteJournalEntry(db, w, r, userID, entryID)
			default:
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			}
		default:
			http.NotFound(w, r)
		}
	})
}

func listJournalEntries(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	rows, err := db.QueryContext(r.Context(), `
		SELECT id, user_id, content, mood, created_at
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Println("Error listing journal entries:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0)
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Mood, &e.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, entries)
}

func createJournalEntry(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	var req journalEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Mood == "" {
		req.Mood = "neutral"
	}

	var e JournalEntry
	err := db.QueryRowContext(r.Context(), `
		INSERT INTO journal_entries (user_id, content, mood)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, content, mood, created_at
	`, userID, req.Content, req.Mood).Scan(&e.ID, &e.UserID, &e.Content, &e.Mood, &e.CreatedAt)
	if err != nil {
		log.Println("Error creating journal entry:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func updateJournalEntry(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, entryID int) {
	var req journalEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Mood == "" {
		req.Mood = "neutral"
	}

	var e JournalEntry
	err := db.QueryRowContext(r.Context(), `
		UPDATE journal_entries
		SET content = $1, mood = $2
		WHERE id = $3 AND user_id = $4
		RETURNING id, user_id, content, mood, created_at
	`, req.Content, req.Mood, entryID, userID).Scan(&e.ID, &e.UserID, &e.Content, &e.Mood, &e.CreatedAt)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not_found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func deleteJournalEntry(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, entryID int) {
	res, err := db.ExecContext(r.Context(), `
		DELETE FROM journal_entries WHERE id = $1 AND user_id = $2
	`, entryID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Journal entry deleted successfully"})
}

// GET /journal/{id}/analysis - mood distribution over all entries.
func journalAnalysis(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	rows, err := db.QueryContext(r.Context(), `
		SELECT mood, created_at
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	moodCounts := map[string]int{}
	var total int
	var first, last *time.Time
	for rows.Next() {
		var mood string
		var createdAt time.Time
		if err := rows.Scan(&mood, &createdAt); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		moodCounts[mood]++
		total++
		if last == nil {
			t := createdAt
			last = &t
		}
		t := createdAt
		first = &t // rows are newest-first, so the final row is the oldest
	}

	mostCommon := "neutral"
	best := 0
	for mood, count := range moodCounts {
		if count > best || (count == best && mood < mostCommon) {
			mostCommon = mood
			best = count
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_entries":     total,
		"mood_distribution": moodCounts,
		"most_common_mood":  mostCommon,
		"first_entry_date":  first,
		"last_entry_date":   last,
	})
}

// GET /journal/{id}/insights?timeframe=week|month
func journalInsights(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	timeframe := r.URL.Query().Get("timeframe")
	days := 30
	if timeframe == "week" {
		days = 7
	} else {
		timeframe = "month"
	}
	start := time.Now().AddDate(0, 0, -days)

	rows, err := db.QueryContext(r.Context(), `
		SELECT mood, created_at
		FROM journal_entries
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, userID, start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	moodCounts := map[string]int{}
	daysWithEntries := map[string]bool{}
	total := 0
	for rows.Next() {
		var mood string
		var createdAt time.Time
		if err := rows.Scan(&mood, &createdAt); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		moodCounts[mood]++
		daysWithEntries[createdAt.Format("2006-01-02")] = true
		total++
	}

	totalDays := days + 1
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timeframe":               timeframe,
		"total_entries":           total,
		"mood_distribution":       moodCounts,
		"writing_frequency":       float64(len(daysWithEntries)) / float64(totalDays),
		"average_entries_per_day": float64(total) / float64(totalDays),
	})
}
