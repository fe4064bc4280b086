package logging

import (
	"strings"

	"github.com/sirupsen/logrus"

	"sparsechat/internal/crypto"
	"sparsechat/internal/domain"
)

const redactedValue = "[REDACTED]"

var sensitiveKeyParts = []string{"private", "secret", "key_material", "session_key", "plaintext", "passphrase", "token"}

// RedactHook rewrites entry fields before formatting: values under sensitive
// keys become [REDACTED] and raw public keys are replaced by a fingerprint.
type RedactHook struct{}

// NewRedactHook returns the hook installed by New.
func NewRedactHook() *RedactHook { return &RedactHook{} }

// Levels applies the hook to every level.
func (h *RedactHook) Levels() []logrus.Level { return logrus.AllLevels }

// Fire scrubs entry.Data in place.
func (h *RedactHook) Fire(entry *logrus.Entry) error {
	if len(entry.Data) == 0 {
		return nil
	}
	clean := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		key, val := SanitizeField(k, v)
		clean[key] = val
	}
	entry.Data = clean
	return nil
}

// SanitizeField returns the key and value that may be logged for k, v.
func SanitizeField(k string, v any) (string, any) {
	lower := strings.ToLower(strings.TrimSpace(k))
	if isSensitiveKey(lower) {
		return k, redactedValue
	}
	if lower == "public_key" {
		if fp, ok := fingerprintOf(v); ok {
			return "public_key_fp", fp
		}
	}
	return k, v
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func fingerprintOf(v any) (string, bool) {
	switch t := v.(type) {
	case domain.X25519Public:
		return crypto.Fingerprint(t).String(), true
	case *domain.X25519Public:
		if t == nil {
			return "", false
		}
		return crypto.Fingerprint(*t).String(), true
	case []byte:
		pub, err := crypto.ParsePublicKey(t)
		if err != nil {
			return redactedValue, true
		}
		return crypto.Fingerprint(pub).String(), true
	default:
		return "", false
	}
}
