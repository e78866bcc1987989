package masking

import (
	"strings"
	"testing"
)

func TestMask_ReplacesConfiguredSecrets(t *testing.T) {
	m := NewMasker([]string{"T1secretvalue", "T2secretvalue"}, nil)

	out := m.Mask("token is T1secretvalue and also T2secretvalue")
	if strings.Contains(out, "T1secretvalue") || strings.Contains(out, "T2secretvalue") {
		t.Fatalf("secrets leaked: %q", out)
	}
	if out != "token is *** and also ***" {
		t.Errorf("unexpected masked output: %q", out)
	}
}

func TestMask_LongestFirst(t *testing.T) {
	// One secret is a prefix of another; the longer one must win so no
	// partial tail survives.
	m := NewMasker([]string{"abc123", "abc123def456"}, nil)

	out := m.Mask("value=abc123def456")
	if out != "value=***" {
		t.Errorf("longest-first matching failed: %q", out)
	}
}

func TestMask_TokenPrefixes(t *testing.T) {
	m := NewMasker(nil, []string{`ghp_[A-Za-z0-9]{16,}`})

	out := m.Mask("remote: Invalid token ghp_abcdefghij1234567890ABCD provided")
	if strings.Contains(out, "ghp_") {
		t.Errorf("token pattern not masked: %q", out)
	}
}

func TestMask_EmptyAndNoMatch(t *testing.T) {
	m := NewMasker([]string{"secret"}, nil)

	if got := m.Mask(""); got != "" {
		t.Errorf("empty input should stay empty, got %q", got)
	}
	if got := m.Mask("nothing to hide"); got != "nothing to hide" {
		t.Errorf("unrelated input mutated: %q", got)
	}
}

func TestMaskAll(t *testing.T) {
	m := NewMasker([]string{"hunter2"}, nil)

	out := m.MaskAll([]string{"pr", "create", "--body", "token hunter2"})
	if out[3] != "token ***" {
		t.Errorf("slice element not masked: %q", out[3])
	}
	if out[0] != "pr" || out[1] != "create" {
		t.Error("unrelated elements mutated")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("ghp_abcdefghij1234567890"); got != "ghp_***7890" {
		t.Errorf("MaskSecret long = %q", got)
	}
	if got := MaskSecret("short"); got != Marker {
		t.Errorf("MaskSecret short = %q, want bare marker", got)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "a***e@example.com",
		"a@example.com":     "a***@example.com",
		"not-an-email":      Marker,
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
