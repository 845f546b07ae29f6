package license

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Canonicalize
// ---------------------------------------------------------------------------

func TestCanonicalizeAccepts(t *testing.T) {
	tests := []struct {
		raw        string
		wantCanon  string
		wantPrefix string
	}{
		{"ACME-AAAA-BBBB-CCCC-DDDD", "ACME-AAAA-BBBB-CCCC-DDDD", "ACME"},
		{"  acme-aaaa-bbbb-cccc-dddd\n", "ACME-AAAA-BBBB-CCCC-DDDD", "ACME"},
		{"ab-0123-4567-89AB-CDEF", "AB-0123-4567-89AB-CDEF", "AB"},
		{"KAIZEN-1A2B-3C4D-5E6F-7A8B", "KAIZEN-1A2B-3C4D-5E6F-7A8B", "KAIZEN"},
		{"ACME - AAAA - BBBB - CCCC - DDDD", "ACME-AAAA-BBBB-CCCC-DDDD", "ACME"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			k, err := Canonicalize(tt.raw)
			if err != nil {
				t.Fatalf("Canonicalize(%q): %v", tt.raw, err)
			}
			if k.String() != tt.wantCanon {
				t.Errorf("canonical = %q, want %q", k.String(), tt.wantCanon)
			}
			if k.Prefix() != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", k.Prefix(), tt.wantPrefix)
			}
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"", ErrMissing},
		{"   ", ErrMissing},
		{"A-AAAA-BBBB-CCCC-DDDD", ErrInvalid},       // prefix too short
		{"ABCDEFG-AAAA-BBBB-CCCC-DDDD", ErrInvalid}, // prefix too long
		{"AC1E-AAAA-BBBB-CCCC-DDDD", ErrInvalid},    // digit in prefix
		{"ACME-AAAA-BBBB-CCCC", ErrInvalid},         // missing group
		{"ACME-AAAA-BBBB-CCCC-DDDD-EEEE", ErrInvalid},
		{"ACME-AAA-BBBB-CCCC-DDDD", ErrInvalid},
		{"ACME_AAAA_BBBB_CCCC_DDDD", ErrInvalid},
		{"ACME-AAAA-BBBB-CCCC-DDD!", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := Canonicalize(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("Canonicalize(%q) error = %v, want %v", tt.raw, err, tt.want)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"acme-aaaa-bbbb-cccc-dddd",
		" Zz-0000-ffff-1a2b-c3d4 ",
		"KAIZEN-1A2B-3C4D-5E6F-7A8B",
	}
	for _, raw := range inputs {
		once, err := Canonicalize(raw)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", raw, err)
		}
		twice, err := Canonicalize(once.String())
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", once.String(), err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	}
}

// ---------------------------------------------------------------------------
// Pepper normalization
// ---------------------------------------------------------------------------

func TestNormalizePepper(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Pepper
	}{
		{"clean", "s3cr3t", "s3cr3t"},
		{"trailing newline", "s3cr3t\n", "s3cr3t"},
		{"crlf", "s3cr3t\r\n", "s3cr3t"},
		{"leading tab", "\ts3cr3t", "s3cr3t"},
		{"double quoted", `"s3cr3t"`, "s3cr3t"},
		{"single quoted", `'s3cr3t'`, "s3cr3t"},
		{"backticks", "`s3cr3t`", "s3cr3t"},
		{"nested quotes", `"'s3cr3t'"`, "s3cr3t"},
		{"quoted with spaces", `  " s3cr3t "  `, "s3cr3t"},
		{"zero width space", "s3\u200bcr3t", "s3cr3t"},
		{"bom", "\ufeffs3cr3t", "s3cr3t"},
		{"nbsp", "s3cr3t\u00a0", "s3cr3t"},
		{"unbalanced quote kept", `"s3cr3t`, `"s3cr3t`},
		{"interior quote kept", `s3"cr3t`, `s3"cr3t`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePepper(tt.raw); got != tt.want {
				t.Errorf("NormalizePepper(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizePepperComposesNFC(t *testing.T) {
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"
	if NormalizePepper(decomposed) != NormalizePepper(composed) {
		t.Error("decomposed and composed forms should normalize identically")
	}
	rep := InspectPepper(decomposed)
	if !rep.Recomposed {
		t.Error("expected Recomposed for decomposed input")
	}
}

func TestInspectPepperReport(t *testing.T) {
	rep := InspectPepper("\"s3cr3t\u200b\"\n")
	if rep.Normalized != "s3cr3t" {
		t.Fatalf("Normalized = %q", rep.Normalized)
	}
	if rep.StrippedQuotes != 1 || rep.StrippedZW != 1 || rep.StrippedSpaces != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if !rep.Changed() {
		t.Error("expected Changed")
	}
	if InspectPepper("clean").Changed() {
		t.Error("clean pepper should be unchanged")
	}
}

func TestNormalizePepperIdempotent(t *testing.T) {
	raw := " '\"pe\u200dpper\"' \r\n"
	once := NormalizePepper(raw)
	if NormalizePepper(string(once)) != once {
		t.Errorf("not idempotent: %q", once)
	}
}

// ---------------------------------------------------------------------------
// Hashing
// ---------------------------------------------------------------------------

func TestHashDeterministic(t *testing.T) {
	k, _ := Canonicalize("ACME-AAAA-BBBB-CCCC-DDDD")
	p := NormalizePepper("pepper")

	a := Hash(p, k)
	b := Hash(p, k)
	if a != b {
		t.Errorf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a != strings.ToLower(a) {
		t.Error("hash should be lower-case")
	}
}

func TestHashKnownVector(t *testing.T) {
	k, _ := Canonicalize("acme-aaaa-bbbb-cccc-dddd")
	got := Hash("pepper", k)
	want := "58d7d97cb0eecccbf14b71eb3394249457dd7ce8290da907af4909909acbba9e"
	if got != want {
		t.Errorf("Hash = %s, want %s", got, want)
	}
}

func TestHashPepperSensitive(t *testing.T) {
	k, _ := Canonicalize("ACME-AAAA-BBBB-CCCC-DDDD")
	if Hash("one", k) == Hash("two", k) {
		t.Error("different peppers must produce different hashes")
	}
}

func TestHashSurvivesPepperNoise(t *testing.T) {
	k, _ := Canonicalize("ACME-AAAA-BBBB-CCCC-DDDD")
	clean := Hash(NormalizePepper("pepper"), k)
	noisy := Hash(NormalizePepper("\"pepper\"\r\n"), k)
	if clean != noisy {
		t.Error("normalized noisy pepper should hash like the clean pepper")
	}
}

func TestHashIP(t *testing.T) {
	if HashIP("") != "" {
		t.Error("empty ip should hash to empty")
	}
	if HashIP("203.0.113.7") == HashIP("203.0.113.8") {
		t.Error("distinct addresses should hash differently")
	}
}

// ---------------------------------------------------------------------------
// Generation and masking
// ---------------------------------------------------------------------------

func TestGenerate(t *testing.T) {
	k, err := Generate("acme")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if k.Prefix() != "ACME" {
		t.Errorf("prefix = %q", k.Prefix())
	}
	again, err := Canonicalize(k.String())
	if err != nil || again != k {
		t.Errorf("generated key %q is not canonical", k)
	}

	other, _ := Generate("ACME")
	if other == k {
		t.Error("two generated keys collided")
	}
}

func TestGenerateRejectsBadPrefix(t *testing.T) {
	for _, p := range []string{"", "A", "TOOLONGX", "A1"} {
		if _, err := Generate(p); err == nil {
			t.Errorf("Generate(%q) should fail", p)
		}
	}
}

func TestMask(t *testing.T) {
	k, _ := Canonicalize("ACME-AAAA-BBBB-CCCC-DDDD")
	if got := Mask(k); got != "ACME-****-****-****-DDDD" {
		t.Errorf("Mask = %q", got)
	}
}
