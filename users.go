package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const uploadRoot = "./uploads"

// UserUpdate enumerates every field a user may change. Absent fields are
// left untouched; nothing outside this list can be written through the
// update endpoint.
type UserUpdate struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
	Age      *int    `json:"age"`
	Gender   *string `json:"gender"`
	Location *string `json:"location"`
	Bio      *string `json:"bio"`
}

// userResponse is the public shape of a user row.
type userResponse struct {
	ID             int                `json:"id"`
	Email          string             `json:"email"`
	FullName       string             `json:"full_name"`
	Age            *int               `json:"age"`
	Gender         string             `json:"gender,omitempty"`
	Location       string             `json:"location,omitempty"`
	Bio            string             `json:"bio,omitempty"`
	ProfilePicture string             `json:"profile_picture,omitempty"`
	TraitScores    map[string]float64 `json:"trait_scores"`
	IsActive       bool               `json:"is_active"`
}

func scanUserResponse(row interface{ Scan(...any) error }) (*userResponse, error) {
	var u userResponse
	var age sql.NullInt64
	var traitsRaw []byte
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &age, &u.Gender, &u.Location,
		&u.Bio, &u.ProfilePicture, &traitsRaw, &u.IsActive)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		u.Age = &v
	}
	u.TraitScores = map[string]float64{}
	_ = json.Unmarshal(traitsRaw, &u.TraitScores)
	return &u, nil
}

const userResponseColumns = `id, email, COALESCE(full_name, ''), age, COALESCE(gender, ''),
	COALESCE(location, ''), COALESCE(bio, ''), COALESCE(profile_picture, ''), trait_scores, is_active`

// GET /users?skip=0&limit=100
func usersListHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		skip, limit := 0, 100
		if v := r.URL.Query().Get("skip"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				skip = n
			}
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT `+userResponseColumns+`
			FROM users
			WHERE is_active = TRUE
			ORDER BY id
			OFFSET $1 LIMIT $2
		`, skip, limit)
		if err != nil {
			log.Println("Error listing users:", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		defer rows.Close()

		users := make([]userResponse, 0)
		for rows.Next() {
			u, err := scanUserResponse(rows)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			users = append(users, *u)
		}
		writeJSON(w, http.StatusOK, users)
	})
}

// Dispatcher for /users/{id}[/profile-picture | /voice-analysis]
func usersDispatcher(db *sql.DB, provider AnalysisProvider) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "users" {
			http.NotFound(w, r)
			return
		}
		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			http.NotFound(w, r)
			return
		}

		if len(parts) == 2 {
			switch r.Method {
			case http.MethodGet:
				getUserHandler(db, w, r, userID)
			case http.MethodPut:
				updateUserHandler(db, w, r, userID)
			case http.MethodDelete:
				deactivateUserHandler(db, w, r, userID)
			default:
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			}
			return
		}
		if len(parts) == 3 {
			switch parts[2] {
			case "profile-picture":
				profilePictureHandler(db, w, r, userID)
			case "voice-analysis":
				voiceAnalysisHandler(db, provider, w, r, userID)
			default:
				http.NotFound(w, r)
			}
			return
		}
		http.NotFound(w, r)
	})
}

func getUserHandler(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	row := db.QueryRowContext(r.Context(), `
		SELECT `+userResponseColumns+` FROM users WHERE id = $1 AND is_active = TRUE
	`, userID)
	u, err := scanUserResponse(row)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not_found")
		return
	} else if err != nil {
		log.Println("Error loading user:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func updateUserHandler(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	if r.Context().Value(userIDKey).(int) != userID {
		writeError(w, http.StatusForbidden, "not_authorized")
		return
	}

	var upd UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if upd.Age != nil && *upd.Age < 0 {
		writeError(w, http.StatusBadRequest, "validation_error")
		return
	}

	set := []string{}
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Email != nil {
		add("email", strings.TrimSpace(*upd.Email))
	}
	if upd.FullName != nil {
		add("full_name", *upd.FullName)
	}
	if upd.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "hash_error")
			return
		}
		add("password_hash", string(hash))
	}
	if upd.Age != nil {
		add("age", *upd.Age)
	}
	if upd.Gender != nil {
		add("gender", *upd.Gender)
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}
	if upd.Bio != nil {
		add("bio", *upd.Bio)
	}
	if len(set) == 0 {
		writeError(w, http.StatusBadRequest, "no_fields")
		return
	}

	args = append(args, userID)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	res, err := db.ExecContext(r.Context(), query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			writeError(w, http.StatusConflict, "email_exists")
			return
		}
		log.Println("Error updating user:", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	getUserHandler(db, w, r, userID)
}

// DELETE /users/{id} - soft-deactivate; rows are never hard-deleted.
func deactivateUserHandler(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	if r.Context().Value(userIDKey).(int) != userID {
		writeError(w, http.StatusForbidden, "not_authorized")
		return
	}
	res, err := db.ExecContext(r.Context(), `UPDATE users SET is_active = FALSE WHERE id = $1`, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deactivated"})
}

// POST /users/{id}/profile-picture (multipart form, field name: "file")
func profilePictureHandler(db *sql.DB, w http.ResponseWriter, r *http.Request, userID int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		return
	}
	if r.Context().Value(userIDKey).(int) != userID {
		writeError(w, http.StatusForbidden, "not_authorized")
		return
	}

	// Limit to ~3MB
	r.Body = http.MaxBytesReader(w, r.Body, 3<<20)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large_or_missing")
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer f.Close()

	// Sniff MIME from the first bytes
	head := make([]byte, 512)
	n, _ := f.Read(head)
	ctype := http.DetectContentType(head[:n])
	var ext string
	switch ctype {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	default:
		writeError(w, http.StatusBadRequest, "unsupported_image_type")
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "seek_failed")
		return
	}

	key := filepath.Join("pictures", uuid.NewString()+ext)
	if err := saveUpload(f, key); err != nil {
		log.Println("Error saving profile picture:", err)
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}

	if _, err := db.ExecContext(r.Context(),
		`UPDATE users SET profile_picture = $1 WHERE id = $2`, key, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_update_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"profile_picture_url": "/uploads/" + filepath.ToSlash(key),
	})
}

// saveUpload writes an uploaded stream under uploadRoot with a tmp-rename
// so readers never see a half-written file.
func saveUpload(src io.Reader, key string) error {
	dst := filepath.Join(uploadRoot, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
