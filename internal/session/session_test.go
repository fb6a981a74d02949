package session

import (
	"testing"
	"time"
)

func TestNewService(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)
	if service == nil {
		t.Fatal("Expected service to be created")
	}
}

func TestGenerateToken(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	token, err := service.GenerateToken(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Token should not be empty")
	}
}

func TestValidate_Valid(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	token, err := service.GenerateToken(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.UserID != 12345 {
		t.Errorf("Expected UserID 12345, got %d", claims.UserID)
	}
	if claims.DeviceID != "device-123" {
		t.Errorf("Expected DeviceID device-123, got %s", claims.DeviceID)
	}
}

func TestValidate_Invalid(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	_, err := service.Validate("invalid-token")
	if err == nil {
		t.Error("Expected error for invalid token")
	}
	if err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	// 创建一个已过期的 Token
	service := NewService("test-secret-key", -time.Hour)

	token, err := service.GenerateToken(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = service.Validate(token)
	if err == nil {
		t.Error("Expected error for expired token")
	}
	if err != ErrTokenExpired {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestValidate_WrongSecretKey(t *testing.T) {
	service1 := NewService("secret-key-1", time.Hour)
	service2 := NewService("secret-key-2", time.Hour)

	token, err := service1.GenerateToken(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	// 使用不同的 secret key 验证
	_, err = service2.Validate(token)
	if err == nil {
		t.Error("Expected error for wrong secret key")
	}
	if err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}

func TestCurrentUserID(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	token, err := service.GenerateToken(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	userID, err := service.CurrentUserID(token)
	if err != nil {
		t.Fatalf("Failed to resolve user id: %v", err)
	}
	if userID != 12345 {
		t.Errorf("Expected UserID 12345, got %d", userID)
	}
}

func TestCurrentUserID_Invalid(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	_, err := service.CurrentUserID("garbage")
	if err == nil {
		t.Error("Expected error for invalid token")
	}
}
