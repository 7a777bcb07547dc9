package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/arklim/lead-platform-stepup/internal/core/port"
)

// PasswordAlgo identifies the hashing algorithm recorded alongside hashes.
const PasswordAlgo = "argon2id"

// Argon2Config captures tunable parameters for Argon2id hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var defaultArgon2 = Argon2Config{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

var (
	argonMu  sync.RWMutex
	argonCfg = defaultArgon2
)

// ConfigureArgon2 adjusts the package-wide hashing parameters.
func ConfigureArgon2(cfg Argon2Config) error {
	switch {
	case cfg.Memory == 0:
		return fmt.Errorf("argon2 memory must be positive")
	case cfg.Iterations == 0:
		return fmt.Errorf("argon2 iterations must be positive")
	case cfg.Parallelism == 0:
		return fmt.Errorf("argon2 parallelism must be positive")
	case cfg.SaltLength == 0:
		return fmt.Errorf("argon2 salt length must be positive")
	case cfg.KeyLength == 0:
		return fmt.Errorf("argon2 key length must be positive")
	}

	argonMu.Lock()
	argonCfg = cfg
	argonMu.Unlock()
	return nil
}

// HashPassword generates an Argon2id hash for the provided password.
// The resulting string is encoded as "salt:hash" with both components base64-encoded.
func HashPassword(password string) (string, error) {
	argonMu.RLock()
	cfg := argonCfg
	argonMu.RUnlock()

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)
	encodedSalt := base64.StdEncoding.EncodeToString(salt)
	encodedHash := base64.StdEncoding.EncodeToString(hash)

	return fmt.Sprintf("%s:%s", encodedSalt, encodedHash), nil
}

// VerifyPassword compares the provided password against a stored Argon2id hash.
func VerifyPassword(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	parts := strings.Split(encoded, ":")
	if len(parts) != 2 {
		return false, fmt.Errorf("invalid password hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	storedHash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	argonMu.RLock()
	cfg := argonCfg
	argonMu.RUnlock()

	computed := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, uint32(len(storedHash)))

	if subtle.ConstantTimeCompare(computed, storedHash) == 1 {
		return true, nil
	}

	return false, nil
}

// Argon2Hasher adapts the package-level helpers to port.PasswordHasher.
type Argon2Hasher struct{}

// NewArgon2Hasher constructs a hasher backed by the configured Argon2id parameters.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{}
}

func (Argon2Hasher) Hash(password string) (string, error) {
	return HashPassword(password)
}

func (Argon2Hasher) Verify(password string, encoded string) (bool, error) {
	return VerifyPassword(password, encoded)
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)
