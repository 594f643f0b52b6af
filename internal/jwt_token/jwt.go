package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
)

// Claims are the actor claims the identity layer signs. The subject is the
// actor id.
type Claims struct {
	TenantID  string   `json:"tenant_id"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the actor context. Unknown role tags
// are rejected.
func (c *Claims) Actor() (id.Actor, error) {
	actorID, err := id.ParseActorID(c.Subject)
	if err != nil {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	tenantID, err := id.ParseTenantID(c.TenantID)
	if err != nil {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token tenant")
	}
	roles, err := id.ParseRoles(c.Roles)
	if err != nil {
		return id.Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token roles")
	}
	var sessionID id.SessionID
	if c.SessionID != "" {
		if sessionID, err = id.ParseSessionID(c.SessionID); err != nil {
			return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token session")
		}
	}
	return id.Actor{ID: actorID, TenantID: tenantID, SessionID: sessionID, Roles: roles}, nil
}

// JWTService signs and validates HS256 actor tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateActorToken is used by the CLI and tests; production tokens come
// from the identity provider.
func (s *JWTService) GenerateActorToken(actor id.Actor, expiresIn time.Duration) (string, error) {
	roles := make([]string, len(actor.Roles))
	for i, r := range actor.Roles {
		roles[i] = string(r)
	}
	claims := Claims{
		TenantID: actor.TenantID.String(),
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	}
	if !actor.SessionID.IsNil() {
		claims.SessionID = actor.SessionID.String()
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateActor validates the token and returns the actor it names.
func (s *JWTService) ValidateActor(tokenString string) (id.Actor, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.Actor{}, err
	}
	return claims.Actor()
}
