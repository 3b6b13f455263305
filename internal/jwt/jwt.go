package jwt

import (
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// ErrMissingCredentials indicates the signer lacks client id, secret, or user token.
var ErrMissingCredentials = errors.New("jwt: missing credentials")

// AuthenticationClaims is the decoded payload of an OAuth Authentication header.
type AuthenticationClaims struct {
	ClientID  string
	UserToken string
	IssuedAt  time.Time
}

// Signer produces the HS256 JWS sent in the Authentication header of the OAuth exchange.
// The issuer and subject are the client id, the audience is the user token, and the
// client secret is the HMAC key.
type Signer struct {
	clientID  string
	secret    []byte
	userToken string
}

// NewSigner constructs a Signer for one set of credentials.
func NewSigner(clientID, clientSecret, userToken string) *Signer {
	return &Signer{clientID: clientID, secret: []byte(clientSecret), userToken: userToken}
}

// Sign serializes a compact JWS issued at now.
func (s *Signer) Sign(now time.Time) (string, error) {
	if s.clientID == "" || len(s.secret) == 0 || s.userToken == "" {
		return "", ErrMissingCredentials
	}

	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.HS256, Key: s.secret}, (&gojose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	claims := gojwt.Claims{
		Issuer:   s.clientID,
		Subject:  s.clientID,
		Audience: gojwt.Audience{s.userToken},
		IssuedAt: gojwt.NewNumericDate(now.UTC()),
	}

	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jws: %w", err)
	}
	return token, nil
}

// Verify checks the signature of an Authentication header against the client secret
// and returns its claims.
func Verify(token, clientSecret string) (*AuthenticationClaims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parse jws: %w", err)
	}

	var std gojwt.Claims
	if err := parsed.Claims([]byte(clientSecret), &std); err != nil {
		return nil, fmt.Errorf("verify jws: %w", err)
	}
	if std.Issuer == "" || std.Issuer != std.Subject || len(std.Audience) == 0 {
		return nil, fmt.Errorf("verify jws: unexpected claims")
	}

	out := &AuthenticationClaims{ClientID: std.Issuer, UserToken: std.Audience[0]}
	if std.IssuedAt != nil {
		out.IssuedAt = std.IssuedAt.Time()
	}
	return out, nil
}
