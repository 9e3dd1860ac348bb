package main

import (
	"database/sql"
	"net/http"
	"strings"
)

// Static interest catalog used by onboarding. A future iteration could
// move this into its own table.
var interestCatalog = []string{
	"hiking", "reading", "cooking", "traveling", "photography",
	"music", "art", "sports", "gaming", "movies", "technology",
	"science", "nature", "animals", "fitness", "yoga", "meditation",
	"dancing", "singing", "writing", "painting", "drawing", "sculpting",
	"coding", "gardening", "baking", "knitting", "sewing", "woodworking",
}

var suggestedInterests = []string{
	"hiking", "reading", "cooking", "traveling", "photography",
	"music", "art", "sports", "gaming", "movies",
}

var popularInterests = []string{
	"hiking", "yoga", "meditation", "cooking", "traveling",
	"photography", "music", "art", "fitness", "technology",
}

// searchInterests returns catalog entries containing q, capped at limit.
func searchInterests(q string, limit int) []string {
	q = strings.ToLower(q)
	matches := make([]string, 0, limit)
	for _, interest := range interestCatalog {
		if strings.Contains(interest, q) {
			matches = append(matches, interest)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// GET /profile/validate-username?username=...
func validateUsernameHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.URL.Query().Get("username"))
		if username == "" {
			writeError(w, http.StatusBadRequest, "missing_username")
			return
		}

		var exists bool
		err := db.QueryRowContext(r.Context(), `
			SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(full_name) = LOWER($1))
		`, username).Scan(&exists)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"available":   !exists,
			"suggestions": []string{},
		})
	}
}

// GET /profile/interests/search?q=...
func searchInterestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			writeError(w, http.StatusBadRequest, "missing_query")
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"interests": searchInterests(q, 10)})
	}
}

// GET /profile/interests/suggested
func suggestedInterestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"interests": suggestedInterests})
	}
}

// GET /profile/interests/popular
func popularInterestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"interests": popularInterests})
	}
}
