package sealer

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func mustSealer(t *testing.T, cfg Config) *Sealer {
	t.Helper()
	s := New(cfg)
	if err := s.Err(); err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, alg := range []Algorithm{AES256GCM, XChaCha20Poly1305} {
		s := mustSealer(t, Config{Key: testKeyHex, Algorithm: alg})

		for _, in := range []string{"", "123456789012", "TIN-88-0041", "ünïcødé ✓", strings.Repeat("x", 4096)} {
			env, err := s.Seal(in)
			if err != nil {
				t.Fatalf("%s: Seal(%q): %v", alg, in, err)
			}
			got, err := s.Open(env)
			if err != nil {
				t.Fatalf("%s: Open: %v", alg, err)
			}
			if got != in {
				t.Fatalf("%s: round trip got=%q want=%q", alg, got, in)
			}
		}
	}
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	t.Parallel()

	s := mustSealer(t, Config{Key: testKeyHex})

	a, err := s.Seal("123456789012")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := s.Seal("123456789012")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct envelopes for the same plaintext")
	}
}

func TestOpen_AfterCipherSwitch(t *testing.T) {
	t.Parallel()

	old := mustSealer(t, Config{Key: testKeyHex, Algorithm: AES256GCM})
	env, err := old.Seal("legacy")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	cur := mustSealer(t, Config{Key: testKeyHex, Algorithm: XChaCha20Poly1305})
	got, err := cur.Open(env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "legacy" {
		t.Fatalf("got=%q", got)
	}
}

func TestOpen_TamperedOrWrongKey(t *testing.T) {
	t.Parallel()

	s := mustSealer(t, Config{Key: testKeyHex})
	env, err := s.Seal("123456789012")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	otherKey := strings.Repeat("ab", KeySize)
	other := mustSealer(t, Config{Key: otherKey})

	cases := []struct {
		name string
		s    *Sealer
		in   string
	}{
		{name: "tampered", s: s, in: tampered},
		{name: "wrong key", s: other, in: env},
		{name: "not base64", s: s, in: "%%%"},
		{name: "empty", s: s, in: ""},
		{name: "truncated", s: s, in: env[:8]},
		{name: "unknown tag", s: s, in: base64.RawURLEncoding.EncodeToString(append([]byte{0x7f}, raw[1:]...))},
	}

	for _, tc := range cases {
		_, err := tc.s.Open(tc.in)
		if !errors.Is(err, ErrDecrypt) {
			t.Fatalf("%s: expected ErrDecrypt, got %v", tc.name, err)
		}
	}
}

func TestSeal_KeyMisconfigured(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing", cfg: Config{}},
		{name: "short hex", cfg: Config{Key: "0011"}},
		{name: "128-bit base64", cfg: Config{Key: base64.StdEncoding.EncodeToString(make([]byte, 16))}},
		{name: "garbage", cfg: Config{Key: "not a key!"}},
		{name: "unknown cipher", cfg: Config{Key: testKeyHex, Algorithm: "rot13"}},
	}

	for _, tc := range cases {
		s := New(tc.cfg)
		if _, err := s.Seal("x"); !errors.Is(err, ErrKeyConfig) {
			t.Fatalf("%s: Seal expected ErrKeyConfig, got %v", tc.name, err)
		}
		if _, err := s.Open("AQ"); !errors.Is(err, ErrKeyConfig) {
			t.Fatalf("%s: Open expected ErrKeyConfig, got %v", tc.name, err)
		}
		if err := tc.cfg.Validate(); !errors.Is(err, ErrKeyConfig) {
			t.Fatalf("%s: Validate expected ErrKeyConfig, got %v", tc.name, err)
		}
	}
}

func TestParseKey_Encodings(t *testing.T) {
	t.Parallel()

	raw, _ := hex.DecodeString(testKeyHex)
	inputs := []string{
		testKeyHex,
		strings.ToUpper(testKeyHex),
		base64.StdEncoding.EncodeToString(raw),
		base64.RawStdEncoding.EncodeToString(raw),
		base64.URLEncoding.EncodeToString(raw),
		"  " + base64.RawURLEncoding.EncodeToString(raw) + "\n",
	}

	for _, in := range inputs {
		got, err := ParseKey(in)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", in, err)
		}
		if hex.EncodeToString(got) != testKeyHex {
			t.Fatalf("ParseKey(%q) decoded wrong bytes", in)
		}
	}
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	t.Parallel()

	plain := New(Config{})
	// SHA-256("abc"), fixed across processes.
	if got := plain.Fingerprint("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256 fingerprint: %s", got)
	}

	keyed := New(Config{Key: testKeyHex, FingerprintKey: strings.Repeat("k", MinFingerprintKeyBytes)})
	if !keyed.FingerprintKeyed() || plain.FingerprintKeyed() {
		t.Fatalf("FingerprintKeyed mismatch")
	}

	corpus := []string{
		"123456789012", "123456789013", "023456789012", "12345678901", "1234567890120",
		"TIN-001", "tin-001", "", " ", "A", "a",
	}

	for _, s := range []*Sealer{plain, keyed} {
		seen := make(map[string]string, len(corpus))
		for _, in := range corpus {
			fp := s.Fingerprint(in)
			if len(fp) != 64 {
				t.Fatalf("fingerprint length=%d", len(fp))
			}
			if again := s.Fingerprint(in); again != fp {
				t.Fatalf("fingerprint not stable for %q", in)
			}
			if prev, dup := seen[fp]; dup {
				t.Fatalf("collision between %q and %q", prev, in)
			}
			seen[fp] = in
		}
	}

	if plain.Fingerprint("123456789012") == keyed.Fingerprint("123456789012") {
		t.Fatalf("keyed and unkeyed fingerprints should differ")
	}
}

func TestFingerprint_IndependentOfFieldKey(t *testing.T) {
	t.Parallel()

	fpKey := strings.Repeat("f", MinFingerprintKeyBytes)
	a := New(Config{Key: testKeyHex, FingerprintKey: fpKey})
	b := New(Config{Key: strings.Repeat("cd", KeySize), FingerprintKey: fpKey})

	if a.Fingerprint("123456789012") != b.Fingerprint("123456789012") {
		t.Fatalf("fingerprint must not depend on the field key")
	}
}

func TestConfigValidate_FingerprintKeyTooShort(t *testing.T) {
	t.Parallel()

	cfg := Config{Key: testKeyHex, FingerprintKey: "short"}
	if err := cfg.Validate(); !errors.Is(err, ErrKeyConfig) {
		t.Fatalf("expected ErrKeyConfig, got %v", err)
	}

	cfg.FingerprintKey = strings.Repeat("s", MinFingerprintKeyBytes)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(FieldKeyEnv, " "+testKeyHex+" ")
	t.Setenv(FieldCipherEnv, "XChaCha20-Poly1305")
	t.Setenv(FingerprintKeyEnv, "")

	cfg := ConfigFromEnv()
	if cfg.Key != testKeyHex {
		t.Fatalf("key not trimmed")
	}
	if cfg.Algorithm != XChaCha20Poly1305 {
		t.Fatalf("algorithm=%q", cfg.Algorithm)
	}
	if got := New(cfg).Algorithm(); got != XChaCha20Poly1305 {
		t.Fatalf("sealer algorithm=%q", got)
	}
}
