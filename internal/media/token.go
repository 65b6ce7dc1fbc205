// Package media issues signed, time-limited credentials for the external
// media-routing layer. The issuer is a pure function of its inputs and the
// signing secret; it keeps no state and performs no IO.
package media

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the media-plane role encoded in the credential.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// Issuer signs channel credentials with the shared media secret.
type Issuer struct {
	appID  string
	secret []byte
	now    func() time.Time
}

// NewIssuer creates a credential issuer.
func NewIssuer(appID, secret string) *Issuer {
	return &Issuer{appID: appID, secret: []byte(secret), now: time.Now}
}

// NewIssuerWithClock creates an issuer with a fixed clock (tests).
func NewIssuerWithClock(appID, secret string, now func() time.Time) *Issuer {
	return &Issuer{appID: appID, secret: []byte(secret), now: now}
}

// Credential returns a signed token scoped to (channel, uid, role) valid for
// ttl, plus its expiry instant.
func (i *Issuer) Credential(channel string, uid uint32, role Role, ttl time.Duration) (string, time.Time, error) {
	if channel == "" {
		return "", time.Time{}, fmt.Errorf("media: channel name required")
	}
	issuedAt := i.now()
	expiresAt := issuedAt.Add(ttl)
	claims := jwt.MapClaims{
		"app":     i.appID,
		"channel": channel,
		"uid":     uid,
		"role":    string(role),
		"iat":     issuedAt.Unix(),
		"exp":     expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("media: sign credential: %w", err)
	}
	return token, expiresAt, nil
}

// NumericUID reduces a user id to the stable positive 32-bit id the media
// layer requires. Never returns 0 (reserved by the media layer).
func NumericUID(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	uid := h.Sum32() & 0x7fffffff
	if uid == 0 {
		uid = 1
	}
	return uid
}
