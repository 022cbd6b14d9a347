// Package auth validates access tokens issued by auth-service.
package auth

import (
	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medflow/payroll-backend/pkg/actor"
	"github.com/medflow/payroll-backend/pkg/config"
	"github.com/medflow/payroll-backend/pkg/errors"
)

// Claims mirrors the access token claims auth-service signs
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Actor converts the claims to the actor placed in request contexts.
func (c *Claims) Actor() *actor.Actor {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return &actor.Actor{
		ID:       id,
		Email:    c.Email,
		Name:     c.Name,
		RoleName: c.Role,
	}
}

// Validator checks HS256 access tokens
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator creates a validator from the JWT settings
func NewValidator(cfg *config.JWTConfig) *Validator {
	return &Validator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// ValidateAccessToken validates an access token and returns its claims
func (v *Validator) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Unauthorized("token has expired")
		}
		return nil, errors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.Unauthorized("invalid token")
	}
	if claims.UserID == "" && claims.Subject == "" {
		return nil, errors.Unauthorized("token carries no user")
	}

	return claims, nil
}
