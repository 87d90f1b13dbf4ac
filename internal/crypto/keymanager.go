// Package crypto protects the Kalshi RSA private key at rest. Keys are
// sealed with PBKDF2-HMAC-SHA256 derived AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// ErrNoKeySource is returned by LoadKey when nothing is configured.
var ErrNoKeySource = errors.New("crypto: no private key source configured")

// encryptedKeyFile is the on-disk format written by EncryptKey. Byte fields
// are standard base64.
type encryptedKeyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig lists the places a PEM key may come from, in priority order.
type KeyConfig struct {
	// PEM is the key itself, typically injected through the environment.
	PEM string
	// Path points at a plaintext PEM file.
	Path string
	// EncryptedPath points at a file produced by EncryptKey.
	EncryptedPath string
	Password      string
}

// Configured reports whether any key source is set.
func (c KeyConfig) Configured() bool {
	return c.PEM != "" || c.Path != "" || c.EncryptedPath != ""
}

// EncryptKey seals a PEM-encoded private key with password and returns the
// JSON document to write to disk.
func EncryptKey(pemBytes []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if err := checkPEM(pemBytes); err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := encryptedKeyFile{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, pemBytes, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a document produced by EncryptKey and returns the PEM.
func DecryptKey(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted key: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce length %d, want %d", len(nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return plaintext, nil
}

// LoadKey resolves the PEM key from cfg: inline PEM first, then the
// plaintext file, then the encrypted file.
func LoadKey(cfg KeyConfig) ([]byte, error) {
	switch {
	case cfg.PEM != "":
		// Env vars often carry the key with escaped newlines.
		b := []byte(strings.ReplaceAll(cfg.PEM, `\n`, "\n"))
		if err := checkPEM(b); err != nil {
			return nil, err
		}
		return b, nil
	case cfg.Path != "":
		b, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading key file: %w", err)
		}
		if err := checkPEM(b); err != nil {
			return nil, err
		}
		return b, nil
	case cfg.EncryptedPath != "":
		data, err := os.ReadFile(cfg.EncryptedPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptKey(data, cfg.Password)
	}
	return nil, ErrNoKeySource
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

func checkPEM(b []byte) error {
	if block, _ := pem.Decode(b); block == nil {
		return errors.New("crypto: key is not PEM encoded")
	}
	return nil
}
