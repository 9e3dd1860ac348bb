package main

import "time"

// UserProfile holds the demographic record used for matching. Optional
// fields are nil or empty when the user never filled them in; the scorer
// treats those as zero-contribution, not as errors.
type UserProfile struct {
	ID             int
	FullName       string
	Age            *int
	Gender         string
	Location       string
	Bio            string
	ProfilePicture string
	Active         bool
}

// TraitVector maps a personality-trait name to a normalized score in [0,1].
// The authoritative vector for matching is the one from the user's most
// recent text analysis.
type TraitVector map[string]float64

// MatchRecord is the audit row persisted for a single "like" action.
// Rows are append-only: repeated likes create new rows.
type MatchRecord struct {
	ID        int
	UserID    int // the liking user
	TargetID  int // the liked user
	Score     float64
	Summary   string
	CreatedAt time.Time
}

// MatchFilters narrows a candidate query. Interests is accepted for API
// compatibility but candidates are not filtered by it.
type MatchFilters struct {
	MinAge    *int
	MaxAge    *int
	Interests []string
}

// CandidateMatch is one entry of a ranking result page.
type CandidateMatch struct {
	UserID         int      `json:"user_id"`
	Name           string   `json:"name"`
	Age            *int     `json:"age"`
	Gender         string   `json:"gender,omitempty"`
	Location       string   `json:"location,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
	Score          float64  `json:"compatibility_score"`
	Interests      []string `json:"interests"`
}

// MutualMatch is one entry of the stored-likes listing. Despite the
// endpoint name these are one-directional rows; no reciprocity check is
// performed.
type MutualMatch struct {
	UserID int     `json:"user_id"`
	Name   string  `json:"name"`
	Score  float64 `json:"compatibility_score"`
}

// JournalEntry is a private mood journal row.
type JournalEntry struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Content   string    `json:"content"`
	Mood      string    `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a per-user inbox row ("match", "message", "system").
type Notification struct {
	ID        int            `json:"id"`
	UserID    int            `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
