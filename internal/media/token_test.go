package media

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCredentialClaims(t *testing.T) {
	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuerWithClock("app-1", "secret-1", func() time.Time { return issued })

	token, expiresAt, err := issuer.Credential("collab-xyz", 42, RolePublisher, time.Hour)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if !expiresAt.Equal(issued.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", issued.Add(time.Hour), expiresAt)
	}

	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			t.Fatalf("unexpected signing method %v", tok.Method.Alg())
		}
		return []byte("secret-1"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["app"] != "app-1" {
		t.Fatalf("app claim %v", claims["app"])
	}
	if claims["channel"] != "collab-xyz" {
		t.Fatalf("channel claim %v", claims["channel"])
	}
	if uid, _ := claims["uid"].(float64); uint32(uid) != 42 {
		t.Fatalf("uid claim %v", claims["uid"])
	}
	if claims["role"] != string(RolePublisher) {
		t.Fatalf("role claim %v", claims["role"])
	}
	if exp, _ := claims["exp"].(float64); int64(exp) != expiresAt.Unix() {
		t.Fatalf("exp claim %v, want %d", claims["exp"], expiresAt.Unix())
	}
}

func TestCredentialRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("app-1", "secret-1")
	token, _, err := issuer.Credential("collab-xyz", 7, RoleSubscriber, time.Minute)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	_, err = jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte("other"), nil })
	if err == nil {
		t.Fatal("expected verification failure with the wrong secret")
	}
}

func TestCredentialRequiresChannel(t *testing.T) {
	issuer := NewIssuer("app-1", "secret-1")
	if _, _, err := issuer.Credential("", 7, RoleSubscriber, time.Minute); err == nil {
		t.Fatal("expected error for empty channel")
	}
}

func TestNumericUID(t *testing.T) {
	a := NumericUID("user-abc")
	if a == 0 {
		t.Fatal("uid must never be 0")
	}
	if a != NumericUID("user-abc") {
		t.Fatal("uid must be stable for the same user")
	}
	if a&0x80000000 != 0 {
		t.Fatal("uid must fit in a positive int32")
	}
	if a == NumericUID("user-def") {
		t.Fatal("distinct users collided (pick different fixtures)")
	}
}
