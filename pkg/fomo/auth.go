package fomo

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthType represents the authentication method
type AuthType string

const (
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeJWT    AuthType = "jwt"
)

// Authenticator interface for different auth methods
type Authenticator interface {
	AddAuthHeaders(req *http.Request, method, path, body string) error
}

// APIKeyAuthenticator sends a static bearer API key on every request
type APIKeyAuthenticator struct {
	apiKey string
}

func NewAPIKeyAuthenticator(apiKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{apiKey: apiKey}
}

func (a *APIKeyAuthenticator) AddAuthHeaders(req *http.Request, method, path, body string) error {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	return nil
}

// JWTAuthenticator signs a short-lived ES256 token per request
type JWTAuthenticator struct {
	apiKeyName string
	privateKey *ecdsa.PrivateKey
	ttl        time.Duration
}

func NewJWTAuthenticator(apiKeyName, privateKeyPEM string) (*JWTAuthenticator, error) {
	privateKey, err := parseECPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	return &JWTAuthenticator{
		apiKeyName: apiKeyName,
		privateKey: privateKey,
		ttl:        2 * time.Minute,
	}, nil
}

func parseECPrivateKey(privateKeyPEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err == nil {
		return privateKey, nil
	}

	// Try PKCS8 format
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an EC private key")
	}
	return ecKey, nil
}

func (j *JWTAuthenticator) AddAuthHeaders(req *http.Request, method, path, body string) error {
	token, err := j.generateJWT(method, req.URL.Host, path)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (j *JWTAuthenticator) generateJWT(method, host, path string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   j.apiKeyName,
		"iss":   "fomo-trader",
		"nbf":   now.Unix(),
		"exp":   now.Add(j.ttl).Unix(),
		"uri":   method + " " + host + path,
		"nonce": nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = j.apiKeyName

	tokenString, err := token.SignedString(j.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewAuthenticator builds the authenticator selected by authType.
func NewAuthenticator(authType AuthType, apiKey, apiKeyName, privateKeyPEM string) (Authenticator, error) {
	switch authType {
	case "", AuthTypeAPIKey:
		if apiKey == "" {
			return nil, fmt.Errorf("api key is required for %s auth", AuthTypeAPIKey)
		}
		return NewAPIKeyAuthenticator(apiKey), nil
	case AuthTypeJWT:
		if apiKeyName == "" {
			return nil, fmt.Errorf("api key name is required for %s auth", AuthTypeJWT)
		}
		return NewJWTAuthenticator(apiKeyName, privateKeyPEM)
	default:
		return nil, fmt.Errorf("unsupported auth type %q", authType)
	}
}
