package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"familycal/core/constants"
)

// StateResult is the outcome of validating an OAuth state token. Valid is
// false for malformed, tampered or expired tokens; callers must treat that
// as a rejected callback, never as a transport error.
type StateResult struct {
	Valid      bool
	UserID     uuid.UUID
	ReturnPath string
}

type stateClaims struct {
	ReturnPath string `json:"return_path,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and validates the opaque value carried through the OAuth
// redirect. The signature is the sole CSRF defense on the callback — the
// provider knows nothing about our session model — so validation failures
// must reject before any code exchange happens.
type Codec struct {
	secret   []byte
	lifetime time.Duration

	// now is swappable in tests.
	now func() time.Time
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("state token secret is not configured")
	}
	return &Codec{
		secret:   []byte(secret),
		lifetime: constants.StateTokenLifetime,
		now:      time.Now,
	}, nil
}

// Generate produces a signed state token embedding the initiating user and
// an optional post-auth return path.
func (c *Codec) Generate(userID uuid.UUID, returnPath string) (string, error) {
	now := c.now()
	claims := stateClaims{
		ReturnPath: returnPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Validate verifies signature and freshness. It never returns an error for a
// bad token — only Valid=false — so the caller has a single rejection path.
func (c *Codec) Validate(tokenString string) StateResult {
	var claims stateClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return StateResult{Valid: false}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return StateResult{Valid: false}
	}

	return StateResult{
		Valid:      true,
		UserID:     userID,
		ReturnPath: claims.ReturnPath,
	}
}
