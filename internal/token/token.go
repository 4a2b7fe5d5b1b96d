package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Link token kinds. The kind binds a token to one endpoint so an install
// token cannot be replayed against the outgoing redirect.
const (
	KindInstall  = "install"
	KindOutgoing = "outgoing"
)

// Destination URL limit so the signed token fits in a query string.
const MaxURLLength = 2048

// payload structure for encoding/decoding
type payload struct {
	Kind    string `json:"k"`
	ReqID   string `json:"r"`
	Slug    string `json:"s"`
	AddonID int    `json:"a"`
	App     string `json:"ap,omitempty"` // Client app the decision was made for
	URL     string `json:"u"`            // Destination URL
	TS      int64  `json:"t"`
}

// validateLink checks the token fields against limits before signing.
func validateLink(kind, destURL string) error {
	if kind != KindInstall && kind != KindOutgoing {
		return fmt.Errorf("unknown token kind: %q", kind)
	}
	if destURL == "" {
		return fmt.Errorf("destination URL cannot be empty")
	}
	if len(destURL) > MaxURLLength {
		return fmt.Errorf("destination URL too long: %d chars (max %d)", len(destURL), MaxURLLength)
	}
	return nil
}

// Generate creates a signed link token binding a destination URL to the
// request, addon, and endpoint kind that produced it.
func Generate(kind, requestID, slug string, addonID int, app, destURL string, secret []byte) (string, error) {
	if err := validateLink(kind, destURL); err != nil {
		return "", fmt.Errorf("link validation failed: %w", err)
	}

	pl := payload{
		Kind:    kind,
		ReqID:   requestID,
		Slug:    slug,
		AddonID: addonID,
		App:     app,
		URL:     destURL,
		TS:      time.Now().Unix(),
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	token := enc.EncodeToString(data) + "." + enc.EncodeToString(sig)
	return token, nil
}

// Verify checks the token integrity and expiry and returns the payload values.
func Verify(token string, secret []byte, ttl time.Duration) (out struct {
	Kind      string
	RequestID string
	Slug      string
	AddonID   int
	App       string
	URL       string
}, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return out, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return out, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return out, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return out, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return out, ErrInvalid
	}
	if ttl > 0 && time.Since(time.Unix(pl.TS, 0)) > ttl {
		return out, ErrExpired
	}
	out.Kind = pl.Kind
	out.RequestID = pl.ReqID
	out.Slug = pl.Slug
	out.AddonID = pl.AddonID
	out.App = pl.App
	out.URL = pl.URL
	return out, nil
}
