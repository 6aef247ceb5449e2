package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateSessionToken(t *testing.T) {
	manager := NewManager([]byte("test-secret"), time.Hour)

	token, expiresAt, err := manager.GenerateSessionToken("session-123")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("Unexpected expiry: %v", expiresAt)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.SessionID != "session-123" {
		t.Errorf("Expected session-123, got %s", claims.SessionID)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	manager := NewManager([]byte("secret-a"), time.Hour)
	token, _, err := manager.GenerateSessionToken("session-123")
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	other := NewManager([]byte("secret-b"), time.Hour)
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Expected validation failure with wrong secret")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	manager := NewManager([]byte("secret"), time.Hour)
	if _, err := manager.ValidateToken("not.a.token"); err == nil {
		t.Error("Expected validation failure for malformed token")
	}
}
