package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

const (
	CSRFSessionKey = "csrf_token"
	CSRFFormField  = "csrf_token"
	CSRFHeader     = "X-CSRF-Token"
	CSRFHeaderAlt  = "X-XSRF-TOKEN"
)

const csrfNonceBytes = 18

// CSRFManager issues synchronizer tokens of the form nonce.signature where
// the signature is an HMAC over the session id and the nonce. A token copied
// out of one session never verifies in another, even after the session id
// is rotated on login.
type CSRFManager struct {
	key []byte
}

func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{key: []byte(secret)}
}

// EnsureToken returns the session's token, minting a new one when none is
// stored or the stored one was signed for a previous session id.
func (m *CSRFManager) EnsureToken(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("csrf: no session")
	}
	if stored := sess.Get(CSRFSessionKey); stored != "" && m.signedFor(sess.ID, stored) {
		return stored, nil
	}
	nonce := make([]byte, csrfNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	token := encoded + "." + m.sign(sess.ID, encoded)
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken accepts token only when it equals the stored token and carries
// a valid signature for the current session id.
func (m *CSRFManager) VerifyToken(ctx context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	stored := sess.Get(CSRFSessionKey)
	if stored == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(stored), []byte(token)) || !m.signedFor(sess.ID, token) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) signedFor(sessionID, token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(m.sign(sessionID, nonce)))
}

func (m *CSRFManager) sign(sessionID, nonce string) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// TokenFromRequest looks at the CSRF headers first and falls back to the
// form field for urlencoded and multipart posts.
func TokenFromRequest(r *http.Request) string {
	for _, h := range [...]string{CSRFHeader, CSRFHeaderAlt} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	return r.PostFormValue(CSRFFormField)
}
