// Package crypto turns a user password and a plaintext into an authenticated
// ciphertext envelope and back. Keys are derived with PBKDF2-SHA256 and
// payloads sealed with AES-256-GCM; the envelope is a JSON document with
// base64-encoded binary fields so it can travel inside the text entries of a
// backup archive.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// FormatVersion is the envelope layout version. Field lengths below are
	// only valid for this version; a future version may change them and the
	// decoder must branch on the version before assuming layout.
	FormatVersion = 1

	// KeySize is the derived AES-256 key size in bytes.
	KeySize = 32

	// SaltSize is the PBKDF2 salt size in bytes.
	SaltSize = 16

	// NonceSize is the GCM nonce size in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag size in bytes.
	TagSize = 16

	// Iterations is the PBKDF2 iteration count. It is the sole brute-force
	// deterrent for password-protected archives and must not be lowered.
	Iterations = 600_000
)

var (
	// ErrEnvelope indicates the serialized envelope is malformed or carries
	// an unsupported format version.
	ErrEnvelope = errors.New("invalid encryption envelope")

	// ErrAuthentication indicates the authentication tag did not verify:
	// wrong password or tampered ciphertext. Callers surface this as
	// "incorrect password", never as a corrupt-file condition.
	ErrAuthentication = errors.New("authentication failed")
)

// envelope is the wire form of an encrypted segment.
type envelope struct {
	FormatVersion int    `json:"formatVersion"`
	Salt          string `json:"salt"`
	IV            string `json:"iv"`
	Ciphertext    string `json:"ciphertext"`
	AuthTag       string `json:"authTag"`
}

// Encrypt seals plaintext under a key derived from password and returns the
// serialized envelope. Salt and nonce are freshly generated on every call,
// so two encryptions of the same input never produce the same envelope.
func Encrypt(plaintext, password string) (string, error) {
	salt, err := randomBytes(SaltSize)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	// Seal appends the tag to the ciphertext; the envelope keeps them in
	// separate fields.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	env := envelope{
		FormatVersion: FormatVersion,
		Salt:          base64.StdEncoding.EncodeToString(salt),
		IV:            base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:    base64.StdEncoding.EncodeToString(ct),
		AuthTag:       base64.StdEncoding.EncodeToString(tag),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// Decrypt parses a serialized envelope, re-derives the key from the embedded
// salt and the supplied password, and opens the ciphertext. Malformed
// envelopes yield ErrEnvelope; a tag mismatch yields ErrAuthentication.
func Decrypt(serialized, password string) (string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(serialized), &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	if env.FormatVersion != FormatVersion {
		return "", fmt.Errorf("%w: unsupported format version %d", ErrEnvelope, env.FormatVersion)
	}

	salt, err := decodeField(env.Salt, SaltSize)
	if err != nil {
		return "", fmt.Errorf("%w: salt: %v", ErrEnvelope, err)
	}
	nonce, err := decodeField(env.IV, NonceSize)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrEnvelope, err)
	}
	tag, err := decodeField(env.AuthTag, TagSize)
	if err != nil {
		return "", fmt.Errorf("%w: authTag: %v", ErrEnvelope, err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrEnvelope, err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether text is structurally an encrypted envelope:
// a JSON object carrying the four required binary fields. It never errors;
// any parse failure means "not encrypted". It does not attempt decryption.
func IsEncrypted(text string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return false
	}
	return env.Salt != "" && env.IV != "" && env.Ciphertext != "" && env.AuthTag != ""
}

// newGCM derives the AES-256 key for password+salt and returns a GCM AEAD.
func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// decodeField base64-decodes a fixed-length envelope field and enforces the
// version-1 length.
func decodeField(s string, want int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != want {
		return nil, fmt.Errorf("expected %d bytes, got %d", want, len(b))
	}
	return b, nil
}

// randomBytes returns n bytes from the system's cryptographically secure
// random source.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
