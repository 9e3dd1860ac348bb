package main

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// Dispatcher for /matches/* (ranking, likes, stored matches)
func matchesDispatcher(m *Matcher, notifier Notifier) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "matches" {
			http.NotFound(w, r)
			return
		}
		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		// Ranking, liking and listing all act as the path user; only the
		// token's owner may do that.
		if r.Context().Value(userIDKey).(int) != userID {
			writeError(w, http.StatusForbidden, "not_authorized")
			return
		}

		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			rankCandidatesHandler(m, userID).ServeHTTP(w, r)
		case len(parts) == 3 && parts[2] == "mutual" && r.Method == http.MethodGet:
			mutualMatchesHandler(m, userID).ServeHTTP(w, r)
		case len(parts) == 4 && parts[2] == "like" && r.Method == http.MethodPost:
			targetID, err := strconv.Atoi(parts[3])
			if err != nil {
				http.NotFound(w, r)
				return
			}
			recordLikeHandler(m, notifier, userID, targetID).ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GET /matches/{id}?min_age=&max_age=&interests=a,b
func rankCandidatesHandler(m *Matcher, userID int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseMatchFilters(r)
		if err != nil {
			writeKindError(w, err)
			return
		}

		results, err := m.RankCandidates(r.Context(), userID, filters)
		if err != nil {
			log.Printf("ranking for user %d failed: %v", userID, err)
			writeKindError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func parseMatchFilters(r *http.Request) (MatchFilters, error) {
	var f MatchFilters
	q := r.URL.Query()
	if v := q.Get("min_age"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, validationf("min_age %q", v)
		}
		f.MinAge = &n
	}
	if v := q.Get("max_age"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, validationf("max_age %q", v)
		}
		f.MaxAge = &n
	}
	if v := q.Get("interests"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Interests = append(f.Interests, s)
			}
		}
	}
	return f, nil
}

// POST /matches/{id}/like/{target}
func recordLikeHandler(m *Matcher, notifier Notifier, userID, targetID int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		score, err := m.RecordLike(r.Context(), userID, targetID)
		if err != nil {
			log.Printf("like %d -> %d failed: %v", userID, targetID, err)
			writeKindError(w, err)
			return
		}

		// Best effort; a lost notification never fails the like.
		if err := notifier.Notify(r.Context(), targetID, "match",
			"Someone liked you", fmt.Sprintf("User %d liked your profile", userID)); err != nil {
			log.Println("like notification failed:", err)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":             fmt.Sprintf("User %d liked user %d", userID, targetID),
			"match":               false,
			"compatibility_score": score,
		})
	}
}

// GET /matches/{id}/mutual
func mutualMatchesHandler(m *Matcher, userID int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := m.MutualMatches(r.Context(), userID)
		if err != nil {
			log.Printf("mutual matches for user %d failed: %v", userID, err)
			writeKindError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"mutual_matches": results})
	}
}
