package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// Config holds argon2id cost parameters. Zero values are rejected by
// NewHasher; use DefaultConfig or CodeConfig as a starting point.
type Config struct {
	Memory      uint32 // KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns interactive-login cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// CodeConfig returns lighter parameters suitable for hashing short
// single-use credentials (backup codes), where one verification may scan
// up to ten stored hashes in a single request.
func CodeConfig() Config {
	return Config{
		Memory:      16 * 1024,
		Time:        1,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies credentials with argon2id, producing PHC
// formatted strings ($argon2id$v=..$m=..,t=..,p=..$salt$hash).
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Memory < minMemoryKB {
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("argon2 time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, errors.New("argon2 salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a PHC string from the given plaintext with a fresh salt.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("empty plaintext")
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. A malformed encoded hash returns an error,
// never a match.
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var out parsedPHC
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}
		switch kv[0] {
		case "m":
			v, perr := strconv.ParseUint(kv[1], 10, 32)
			if perr != nil {
				return nil, errors.New("invalid memory parameter")
			}
			out.memory = uint32(v)
		case "t":
			v, perr := strconv.ParseUint(kv[1], 10, 32)
			if perr != nil {
				return nil, errors.New("invalid time parameter")
			}
			out.time = uint32(v)
		case "p":
			v, perr := strconv.ParseUint(kv[1], 10, 8)
			if perr != nil {
				return nil, errors.New("invalid parallelism parameter")
			}
			out.parallelism = uint8(v)
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return nil, errors.New("missing parameters")
	}

	out.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}
	out.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(out.hash) == 0 {
		return nil, errors.New("invalid hash")
	}

	return &out, nil
}
