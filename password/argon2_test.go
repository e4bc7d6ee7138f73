package password

import (
	"strings"
	"testing"
)

func lightConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h, err := NewHasher(lightConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	encoded, err := h.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %q", encoded)
	}

	ok, err := h.Verify("correct-horse", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify(correct): ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong-horse", encoded)
	if err != nil {
		t.Fatalf("Verify(wrong): %v", err)
	}
	if ok {
		t.Fatalf("wrong password verified")
	}
}

func TestHashUsesFreshSalts(t *testing.T) {
	h, err := NewHasher(lightConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	a, err := h.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same-input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatalf("identical hashes for repeated input")
	}
}

func TestVerifyUsesEmbeddedParameters(t *testing.T) {
	// Hash with one parameter set, verify with a hasher configured
	// differently; the PHC string carries its own costs.
	heavy, err := NewHasher(Config{Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	encoded, err := heavy.Hash("portable")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	light, err := NewHasher(lightConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	ok, err := light.Verify("portable", encoded)
	if err != nil || !ok {
		t.Fatalf("cross-config verify: ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	h, err := NewHasher(lightConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	for _, encoded := range []string{
		"",
		"not-a-phc-string",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$short$aGFzaA",
		"$argon2id$v=19$m=8192$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if ok, err := h.Verify("anything", encoded); err == nil || ok {
			t.Fatalf("malformed hash %q: ok=%v err=%v", encoded, ok, err)
		}
	}
}

func TestNewHasherRejectsWeakParameters(t *testing.T) {
	cases := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range cases {
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("case %d: weak config accepted", i)
		}
	}
}
