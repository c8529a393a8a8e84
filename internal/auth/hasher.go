package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Stored digests outside these bounds are rejected rather than computed.
const (
	maxArgon2MemoryKiB = 1 << 22
	maxArgon2Time      = 16
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrMalformedHash = errors.New("malformed password hash")
)

// PasswordHasher turns plaintext passwords into self-describing digests and
// checks candidates against them. Verify returns (false, nil) on mismatch
// and an error only when the stored digest cannot be parsed.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2Params follows the OWASP argon2id baseline.
var DefaultArgon2Params = Argon2Params{
	Time:      1,
	MemoryKiB: 64 * 1024,
	Threads:   4,
	SaltLen:   16,
	KeyLen:    32,
}

type Argon2idHasher struct {
	params Argon2Params
}

func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	if params.Time == 0 {
		params.Time = DefaultArgon2Params.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultArgon2Params.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = DefaultArgon2Params.Threads
	}
	if params.SaltLen == 0 {
		params.SaltLen = DefaultArgon2Params.SaltLen
	}
	if params.KeyLen == 0 {
		params.KeyLen = DefaultArgon2Params.KeyLen
	}
	return &Argon2idHasher{params: params}
}

// Hash returns a PHC string: $argon2id$v=19$m=<kib>,t=<time>,p=<threads>$<salt>$<key>.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	if isBcrypt(digest) {
		return verifyBcrypt(password, digest)
	}

	params, salt, expected, err := parseArgon2id(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade reports digests that should be rehashed with the current
// algorithm and parameters on the next password change.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	params, _, _, err := parseArgon2id(digest)
	if err != nil {
		return true
	}
	return params.Time != h.params.Time || params.MemoryKiB != h.params.MemoryKiB || params.Threads != h.params.Threads
}

func parseArgon2id(digest string) (Argon2Params, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unexpected segment count", ErrMalformedHash)
	}
	if parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: version: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: parameters: %v", ErrMalformedHash, err)
	}
	if memory == 0 || time == 0 || threads == 0 || threads > 255 ||
		memory > maxArgon2MemoryKiB || time > maxArgon2Time {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: salt encoding", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: key encoding", ErrMalformedHash)
	}

	params := Argon2Params{
		Time:      time,
		MemoryKiB: memory,
		Threads:   uint8(threads),
		SaltLen:   uint32(len(salt)),
		KeyLen:    uint32(len(key)),
	}
	return params, salt, key, nil
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

func verifyBcrypt(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}
