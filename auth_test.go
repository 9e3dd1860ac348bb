package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := issueToken(42)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	id, ok := parseUserIDFromJWT(token)
	if !ok {
		t.Fatal("valid token rejected")
	}
	if id != 42 {
		t.Errorf("user id = %d, want 42", id)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := other.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, ok := parseUserIDFromJWT(signed); ok {
		t.Error("token signed with wrong secret accepted")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, ok := parseUserIDFromJWT(signed); ok {
		t.Error("expired token accepted")
	}
}

func TestParseRejectsMissingUserID(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"})
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, ok := parseUserIDFromJWT(signed); ok {
		t.Error("token without user_id claim accepted")
	}
}

func TestGetUserIDFromRequestQueryToken(t *testing.T) {
	token, err := issueToken(7)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token="+token, nil)
	id, ok := getUserIDFromRequest(req)
	if !ok || id != 7 {
		t.Errorf("query token: got (%d, %v), want (7, true)", id, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	if _, ok := getUserIDFromRequest(req); ok {
		t.Error("request without any token accepted")
	}
}
