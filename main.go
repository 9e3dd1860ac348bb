package main

import (
	"log"
	"net/http"
	"os"
)

func main() {
	cfg := loadConfig()
	jwtSecret = cfg.JWTSecret

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Cannot reach the database:", err)
	}
	if err := ensureSchema(db); err != nil {
		log.Fatal("Schema bootstrap failed:", err)
	}

	// Make sure the upload directories exist
	_ = os.MkdirAll(uploadRoot+"/pictures", 0o755)
	_ = os.MkdirAll(uploadRoot+"/audio", 0o755)

	// Collaborators: matching stores, AI provider, moderation, notifications.
	matcher := NewMatcher(newSQLProfileStore(db), newSQLTraitSource(db), newSQLMatchStore(db))
	provider := simulatedAnalysisProvider{}
	moderator := newModerator(cfg.HiveAPIKey)
	notifier := newSQLNotifier(db)
	chatSrv := newChatServer(db, moderator, notifier)

	mux := http.NewServeMux()

	// Auth
	mux.Handle("/auth/register", registerHandler(db))
	mux.Handle("/auth/login", loginHandler(db))

	// Users & profiles
	mux.Handle("/users", usersListHandler(db))
	mux.Handle("/users/", usersDispatcher(db, provider))
	mux.Handle("/profile/validate-username", validateUsernameHandler(db))
	mux.Handle("/profile/interests/search", searchInterestsHandler())
	mux.Handle("/profile/interests/suggested", suggestedInterestsHandler())
	mux.Handle("/profile/interests/popular", popularInterestsHandler())

	// Matching
	mux.Handle("/matches/", matchesDispatcher(matcher, notifier))

	// AI analysis
	mux.Handle("/analyze/text", analyzeTextHandler(db, provider))

	// Chat (REST + WebSocket)
	mux.Handle("/chat/", chatDispatcher(db, provider))
	mux.Handle("/ws/chat", wsChatHandler(chatSrv))

	// Journal & notifications
	mux.Handle("/journal/", journalDispatcher(db))
	mux.Handle("/notifications/", notificationsDispatcher(db))

	// Uploaded media (profile pictures, analysis audio)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadRoot))))

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	log.Printf("Starting Kindred backend on port %s...", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, withCORS(mux)); err != nil {
		log.Fatal("Server stopped:", err)
	}
}
