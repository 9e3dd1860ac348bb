package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// Notifier delivers an inbox notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int, ntype, title, message string) error
}

type sqlNotifier struct {
	db *sql.DB
}

func newSQLNotifier(db *sql.DB) *sqlNotifier {
	return &sqlNotifier{db: db}
}

func (n *sqlNotifier) Notify(ctx context.Context, userID int, ntype, title, message string) error {
	_, err := n.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message)
		VALUES ($1, $2, $3, $4)
	`, userID, ntype, title, message)
	return err
}

// Dispatcher for /notifications/{user_id}[/read/{id} | /read-all | /{id} | /unread-count]
func notificationsDispatcher(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "notifications" {
			http.NotFound(w, r)
			return
		}
		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}
		// Owner only
		if r.Context().Value(userIDKey).(int) != userID {
			writeError(w, http.StatusForbidden, "not_authorized")
			return
		}

		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			listNotifications(db, w, r, userID)
		case len(parts) == 3 && parts[2] == "unread-count" && r.Method == http.MethodGet:
			unreadNotificationCount(db, w, r, userID)
		case len(parts) == 3 && parts[2] == "read-all" && r.Method == http.MethodPut:
			markAllNotificationsRead(db, w, r, userID)
		case len(parts) == 4 && parts[2] == "read" && r.Method == http.MethodPut:
			notificationID, err := strconv.Atoi(parts[3])
			if err != nil {
				http.NotFound(w, r)
				return
			}
			markNotificationRead(db, w, r, userID, notificationID)
		case len(parts) == 3 && r.Method == http.MethodDelete:
			notificationID, err := strconv.Atoi(parts[2])
			if err != nil {
				http.NotFound(w, r)
				return
			}
			deleteNotification(db, w, r, userID, notificationID)
		default:
			http.NotFound(w, r)
		}
	})
}

func listNotifications(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	rows, err := db.QueryContext(r.Context(), `
		SELECT id, user_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Println("Error listing notifications:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		var raw []byte
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &raw, &n.IsRead, &readAt, &n.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		n.Data = map[string]any{}
		_ = json.Unmarshal(raw, &n.Data)
		notifications = append(notifications, n)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func markNotificationRead(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, notificationID int) {
	res, err := db.ExecContext(r.Context(), `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

func markAllNotificationsRead(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	res, err := db.ExecContext(r.Context(), `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	aff, _ := res.RowsAffected()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": strconv.FormatInt(aff, 10) + " notifications marked as read",
	})
}

func deleteNotification(db *sql.DB, w http.ResponseWriter, r *http.Request, userID, notificationID int) {
	res, err := db.ExecContext(r.Context(), `
		DELETE FROM notifications WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}

func unreadNotificationCount(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	var count int
	err := db.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}
