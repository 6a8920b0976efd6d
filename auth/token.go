package auth

import (
	"collab-realtime/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"time"
)

const (
	issuer = "collab-realtime"
	// RoleService marks tokens of backend processes allowed to emit events.
	RoleService = "service"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *CustomClaims) HasRole(role string) bool {
	return lo.Contains(c.Roles, role)
}

// Authenticator signs and verifies tokens shared with the REST layer.
type Authenticator struct {
	secret      []byte
	emitKeyHash string
}

func NewAuthenticator(secret string, emitKeyHash string) *Authenticator {
	return &Authenticator{secret: []byte(secret), emitKeyHash: emitKeyHash}
}

// GenerateToken creates a signed JWT for a specific user.
func (a *Authenticator) GenerateToken(userID domain.UserID, roles []string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID.String(),
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	// HS256 (HMAC with SHA256)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (a *Authenticator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
