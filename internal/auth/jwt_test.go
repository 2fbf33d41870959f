package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager_SignAndParse(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Sign(map[string]interface{}{"uid": "user-1", "role": "admin"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims["uid"] != "user-1" {
		t.Errorf("Parse() uid = %v, want user-1", claims["uid"])
	}
	if claims["role"] != "admin" {
		t.Errorf("Parse() role = %v, want admin", claims["role"])
	}
	if _, ok := claims["exp"]; !ok {
		t.Error("Parse() missing default exp claim")
	}
}

func TestJWTManager_ParseInvalid(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	if _, err := m.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}

	// 用另一把密钥签发的令牌必须被拒绝
	other := NewJWTManager("other-secret", time.Hour)
	token, err := other.Sign(map[string]interface{}{"uid": "user-1"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() cross-secret error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTManager_ParseExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Hour)

	token, err := m.Sign(map[string]interface{}{"uid": "user-1"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() expired error = %v, want ErrInvalidToken", err)
	}
}
