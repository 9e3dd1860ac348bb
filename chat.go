package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChatMessage represents a chat message with metadata
type ChatMessage struct {
	ID        int64     `json:"id"`             // DB message id
	Type      string    `json:"type,omitempty"` // "message" | "typing"
	SessionID int       `json:"session_id"`
	From      int       `json:"from"`
	Body      string    `json:"body,omitempty"`
	Flagged   bool      `json:"is_flagged,omitempty"`
	Ts        time.Time `json:"ts"` // created_at
}

// ServerEvent represents a server-sent event
type ServerEvent struct {
	Type string `json:"type"` // "message" | "typing" | "info" | "error"
	From int    `json:"from,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	userID int
	conn   *websocket.Conn
	send   chan ServerEvent
	srv    *chatServer
}

// Hub manages WebSocket client connections
type Hub struct {
	clientsByUser map[int]map[*Client]bool
	mu            sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clientsByUser: make(map[int]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

func (h *Hub) sendToUser(userID int, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if peers, ok := h.clientsByUser[userID]; ok {
		for c := range peers {
			select {
			case c.send <- evt:
			default:
				// Drop message if user's buffer is full
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For development: allow the frontend dev origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatStore covers the session lookup and message write the realtime path
// needs. Split out as an interface so message handling is testable without
// a database.
type chatStore interface {
	// SessionPeer resolves the other member of an active session, or
	// fails if the session is missing, ended, or the user is not a member.
	SessionPeer(ctx context.Context, sessionID, userID int) (int, error)
	SaveMessage(ctx context.Context, sessionID, senderID int, body string, mod *ModerationResult) (int64, time.Time, error)
}

// chatServer bundles the collaborators the realtime path needs.
type chatServer struct {
	store     chatStore
	hub       *Hub
	moderator Moderator
	notifier  Notifier
}

func newChatServer(db *sql.DB, moderator Moderator, notifier Notifier) *chatServer {
	return &chatServer{store: &sqlChatStore{db: db}, hub: newHub(), moderator: moderator, notifier: notifier}
}

// GET /ws/chat (upgrade)
func wsChatHandler(srv *chatServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromRequest(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WS upgrade error for user %d: %v", userID, err)
			return
		}

		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
			srv:    srv,
		}
		srv.hub.register(client)

		// Announce connection to this client
		client.send <- ServerEvent{Type: "info", Data: "connected"}

		// Start writer
		go clientWriter(client)
		// Start reader (blocks)
		clientReader(client)
	}
}

func clientReader(c *Client) {
	defer func() {
		c.srv.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.send <- ServerEvent{Type: "error", Data: "invalid message format"}
			continue
		}

		switch msg.Type {
		case "message":
			c.handleMessage(msg)
		case "typing":
			peerID, err := c.srv.store.SessionPeer(context.Background(), msg.SessionID, c.userID)
			if err == nil {
				c.srv.hub.sendToUser(peerID, ServerEvent{Type: "typing", From: c.userID})
			}
		default:
			c.send <- ServerEvent{Type: "error", Data: "unknown message type"}
		}
	}
}

func (c *Client) handleMessage(msg ChatMessage) {
	ctx := context.Background()

	peerID, err := c.srv.store.SessionPeer(ctx, msg.SessionID, c.userID)
	if err != nil {
		c.send <- ServerEvent{Type: "error", Data: "no active session"}
		return
	}

	// Every outgoing message passes moderation before it is relayed.
	mod, err := c.srv.moderator.Moderate(ctx, msg.Body)
	if err != nil {
		c.send <- ServerEvent{Type: "error", Data: "cannot send message"}
		return
	}

	id, ts, err := c.srv.store.SaveMessage(ctx, msg.SessionID, c.userID, msg.Body, mod)
	if err != nil {
		log.Println("Error saving chat message:", err)
		c.send <- ServerEvent{Type: "error", Data: "cannot send message"}
		return
	}

	if mod.ShouldFlag {
		// Flagged messages are stored for the audit trail but never relayed.
		c.send <- ServerEvent{Type: "error", Data: "message blocked by moderation"}
		if err := c.srv.notifier.Notify(ctx, c.userID, "system",
			"Message blocked", "Your message was blocked by content moderation"); err != nil {
			log.Println("moderation notification failed:", err)
		}
		return
	}

	out := ServerEvent{
		Type: "message",
		From: c.userID,
		Data: ChatMessage{
			ID:        id,
			Type:      "message",
			SessionID: msg.SessionID,
			From:      c.userID,
			Body:      msg.Body,
			Ts:        ts,
		},
	}
	c.srv.hub.sendToUser(peerID, out)
	c.srv.hub.sendToUser(c.userID, out) // echo (so sender UI updates instantly)
}

func clientWriter(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type sqlChatStore struct {
	db *sql.DB
}

func (s *sqlChatStore) SessionPeer(ctx context.Context, sessionID, userID int) (int, error) {
	var u1, u2 int
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id_1, user_id_2 FROM chat_sessions
		WHERE id = $1 AND is_active = TRUE
	`, sessionID).Scan(&u1, &u2)
	if err == sql.ErrNoRows {
		return 0, notFoundf("session %d", sessionID)
	} else if err != nil {
		return 0, collabf(err, "load session %d", sessionID)
	}
	switch userID {
	case u1:
		return u2, nil
	case u2:
		return u1, nil
	}
	return 0, notFoundf("session %d for user %d", sessionID, userID)
}

func (s *sqlChatStore) SaveMessage(ctx context.Context, sessionID, senderID int, body string, mod *ModerationResult) (int64, time.Time, error) {
	modJSON, err := json.Marshal(mod)
	if err != nil {
		return 0, time.Time{}, err
	}
	var id int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (session_id, sender_id, message_content, moderation_result, is_flagged)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, sessionID, senderID, body, modJSON, mod.ShouldFlag).Scan(&id, &createdAt)
	return id, createdAt, err
}

// Dispatcher for /chat/* (sessions, history, read marks, AI helpers)
func chatDispatcher(db *sql.DB, provider AnalysisProvider) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(userIDKey).(int)
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "chat" {
			http.NotFound(w, r)
			return
		}

		if parts[1] == "sessions" {
			switch {
			case len(parts) == 2 && r.Method == http.MethodPost:
				createChatSession(db, w, r, userID)
			case len(parts) == 2 && r.Method == http.MethodGet:
				listChatSessions(db, w, r, userID)
			case len(parts) == 3 && r.Method == http.MethodDelete:
				sessionID, err := strconv.Atoi(parts[2])
				if err != nil {
					http.NotFound(w, r)
					return
				}
				endChatSession(db, w, r, userID, sessionID)
			default:
				http.NotFound(w, r)
			}
			return
		}

		sessionID, err := strconv.Atoi(parts[1])
		if err != nil || len(parts) != 3 {
			http.NotFound(w, r)
			return
		}

		// Membership check covers every per-session route.
		if _, err := sessionMember(r.Context(), db, sessionID, userID); err != nil {
			writeError(w, http.StatusForbidden, "not_authorized")
			return
		}

		switch {
		case parts[2] == "history" && r.Method == http.MethodGet:
			chatHistory(db, w, r, userID, sessionID)
		case parts[2] == "history" && r.Method == http.MethodDelete:
			clearChatHistory(db, w, r, sessionID)
		case parts[2] == "read" && r.Method == http.MethodPost:
			markChatRead(db, w, r, userID, sessionID)
		case parts[2] == "suggestions" && r.Method == http.MethodPost:
			chatSuggestions(db, provider, w, r, sessionID)
		case parts[2] == "closure" && r.Method == http.MethodPost:
			chatClosure(db, provider, w, r, sessionID)
		default:
			http.NotFound(w, r)
		}
	})
}

// sessionMember checks membership without requiring the session to still
// be active (history stays readable after a session ends).
func sessionMember(ctx context.Context, db *sql.DB, sessionID, userID int) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_sessions
			WHERE id = $1 AND (user_id_1 = $2 OR user_id_2 = $2)
		)
	`, sessionID, userID).Scan(&ok)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, notFoundf("session %d for user %d", sessionID, userID)
	}
	return true, nil
}

// POST /chat/sessions {"target_user_id": 2}
func createChatSession(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	var req struct {
		TargetUserID int `json:"target_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetUserID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.TargetUserID == userID {
		writeError(w, http.StatusBadRequest, "validation_error")
		return
	}

	var sessionID int
	err := db.QueryRowContext(r.Context(), `
		SELECT id FROM chat_sessions
		WHERE user_id_1 = LEAST($1::int, $2::int) AND user_id_2 = GREATEST($1::int, $2::int)
		LIMIT 1
	`, userID, req.TargetUserID).Scan(&sessionID)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "is_new": false})
		return
	}
	if err != sql.ErrNoRows {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	err = db.QueryRowContext(r.Context(), `
		INSERT INTO chat_sessions (user_id_1, user_id_2)
		VALUES (LEAST($1::int, $2::int), GREATEST($1::int, $2::int))
		RETURNING id
	`, userID, req.TargetUserID).Scan(&sessionID)
	if err != nil {
		log.Println("Error creating chat session:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "is_new": true})
}

// GET /chat/sessions
func listChatSessions(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	rows, err := db.QueryContext(r.Context(), `
		SELECT s.id,
		       CASE WHEN s.user_id_1 = $1 THEN s.user_id_2 ELSE s.user_id_1 END AS other_id,
		       COALESCE(u.full_name, ''),
		       COALESCE(u.profile_picture, ''),
		       COALESCE(m.message_content, ''),
		       COALESCE(m.created_at, s.created_at),
		       (SELECT COUNT(*) FROM chat_messages
		        WHERE session_id = s.id AND sender_id <> $1 AND is_read = FALSE AND is_flagged = FALSE)
		FROM chat_sessions s
		JOIN users u ON u.id = CASE WHEN s.user_id_1 = $1 THEN s.user_id_2 ELSE s.user_id_1 END
		LEFT JOIN LATERAL (
			SELECT message_content, created_at
			FROM chat_messages
			WHERE session_id = s.id AND is_flagged = FALSE
			ORDER BY created_at DESC
			LIMIT 1
		) m ON TRUE
		WHERE (s.user_id_1 = $1 OR s.user_id_2 = $1) AND s.is_active = TRUE
		ORDER BY COALESCE(m.created_at, s.created_at) DESC
	`, userID)
	if err != nil {
		log.Println("Error listing chat sessions:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	type sessionSummary struct {
		SessionID       int       `json:"session_id"`
		OtherUserID     int       `json:"other_user_id"`
		OtherUserName   string    `json:"other_user_name"`
		OtherPicture    string    `json:"other_user_profile_picture,omitempty"`
		LastMessage     string    `json:"last_message,omitempty"`
		LastMessageTime time.Time `json:"last_message_time"`
		UnreadCount     int       `json:"unread_count"`
	}
	sessions := make([]sessionSummary, 0)
	for rows.Next() {
		var s sessionSummary
		if err := rows.Scan(&s.SessionID, &s.OtherUserID, &s.OtherUserName, &s.OtherPicture,
			&s.LastMessage, &s.LastMessageTime, &s.UnreadCount); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		sessions = append(sessions, s)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GET /chat/{id}/history - ascending order; reading marks the peer's
// messages as read.
func chatHistory(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, sessionID int) {
	rows, err := db.QueryContext(r.Context(), `
		SELECT id, sender_id, message_content, is_flagged, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	msgs := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.From, &m.Body, &m.Flagged, &m.Ts); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		m.SessionID = sessionID
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		// Don't mark as read if the query failed
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	_, _ = db.ExecContext(r.Context(), `
		UPDATE chat_messages
		SET is_read = TRUE
		WHERE session_id = $1 AND sender_id <> $2 AND is_read IS FALSE
	`, sessionID, userID)

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// POST /chat/{id}/read
func markChatRead(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, sessionID int) {
	_, err := db.ExecContext(r.Context(), `
		UPDATE chat_messages
		SET is_read = TRUE
		WHERE session_id = $1 AND sender_id <> $2 AND is_read IS FALSE
	`, sessionID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Messages marked as read"})
}

// DELETE /chat/sessions/{id} - soft end, history is kept.
func endChatSession(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, sessionID int) {
	res, err := db.ExecContext(r.Context(), `
		UPDATE chat_sessions
		SET is_active = FALSE, ended_at = NOW()
		WHERE id = $1 AND (user_id_1 = $2 OR user_id_2 = $2)
	`, sessionID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		writeError(w, http.StatusForbidden, "not_authorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat session deleted"})
}

// DELETE /chat/{id}/history
func clearChatHistory(db *sql.DB, w http.ResponseWriter, r *http.Request, sessionID int) {
	if _, err := db.ExecContext(r.Context(),
		`DELETE FROM chat_messages WHERE session_id = $1`, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})
}

// loadRecentMessages pulls a short tail of conversation for the AI helpers.
func loadRecentMessages(ctx context.Context, db *sql.DB, sessionID, limit int) ([]ChatMessage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sender_id, message_content, created_at
		FROM chat_messages
		WHERE session_id = $1 AND is_flagged = FALSE
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.From, &m.Body, &m.Ts); err != nil {
			return nil, err
		}
		m.SessionID = sessionID
		msgs = append(msgs, m)
	}
	// Oldest first for the provider.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, rows.Err()
}

// POST /chat/{id}/suggestions {"message": "..."}
func chatSuggestions(db *sql.DB, provider AnalysisProvider, w http.ResponseWriter, r *http.Request, sessionID int) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	history, err := loadRecentMessages(r.Context(), db, sessionID, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	result, err := provider.ChatSuggestions(r.Context(), history, req.Message)
	if err != nil {
		log.Println("Chat suggestions failed:", err)
		writeError(w, http.StatusInternalServerError, "analysis_failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /chat/{id}/closure
func chatClosure(db *sql.DB, provider AnalysisProvider, w http.ResponseWriter, r *http.Request, sessionID int) {
	history, err := loadRecentMessages(r.Context(), db, sessionID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	message, err := provider.ClosureMessage(r.Context(), history)
	if err != nil {
		log.Println("Closure message failed:", err)
		writeError(w, http.StatusInternalServerError, "analysis_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
