// Package masking implements the credential-masking discipline.
//
// A single Masker is built once at configuration load from the set of
// configured secret values plus plugin-supplied token patterns. Every string
// that may have embedded a secret is passed through Mask before it enters a
// log record or a response body.
//
// Masking rules:
//   - Each known secret value is replaced with the fixed marker "***".
//     Known secrets are matched longest-first so a secret that is a prefix
//     of another never leaves a partial tail behind.
//   - Plaintext tokens following common prefixes (e.g. "ghp_", "ya29.")
//     are replaced even when the value is not in the configured set, since
//     upstream error messages may echo tokens back.
package masking

import (
	"regexp"
	"sort"
	"strings"
)

// Marker is the fixed replacement for a masked secret.
const Marker = "***"

// Masker replaces configured secrets and recognizable tokens in strings.
//
// A Masker is immutable after construction and safe for concurrent use.
type Masker struct {
	replacer *strings.Replacer
	patterns []*regexp.Regexp
}

// NewMasker builds a masker from the configured secret values and
// plugin-specified token patterns (regular expressions).
//
// Empty secrets are dropped; patterns that fail to compile are dropped.
func NewMasker(secrets []string, tokenPatterns []string) *Masker {
	vals := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			vals = append(vals, s)
		}
	}
	// Longest first, so overlapping secrets never leave partial matches.
	sort.Slice(vals, func(i, j int) bool { return len(vals[i]) > len(vals[j]) })

	pairs := make([]string, 0, len(vals)*2)
	for _, s := range vals {
		pairs = append(pairs, s, Marker)
	}

	patterns := make([]*regexp.Regexp, 0, len(tokenPatterns))
	for _, p := range tokenPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}

	return &Masker{
		replacer: strings.NewReplacer(pairs...),
		patterns: patterns,
	}
}

// Mask returns s with every configured secret and recognizable token
// replaced by the marker.
func (m *Masker) Mask(s string) string {
	if m == nil || s == "" {
		return s
	}
	out := m.replacer.Replace(s)
	for _, re := range m.patterns {
		out = re.ReplaceAllString(out, Marker)
	}
	return out
}

// MaskAll applies Mask to every element of a string slice, returning a new
// slice.
func (m *Masker) MaskAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = m.Mask(s)
	}
	return out
}

// MaskSecret returns the partial display form of a secret for status
// reporting: the first and last four characters with the marker between.
// Short secrets collapse to the bare marker.
func MaskSecret(secret string) string {
	if len(secret) <= 12 {
		return Marker
	}
	return secret[:4] + Marker + secret[len(secret)-4:]
}

// MaskEmail masks the local part of an email address to its first and last
// character, keeping the domain visible: "alice@example.com" becomes
// "a***e@example.com". Values without "@" are fully masked.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return Marker
	}
	local, domain := email[:at], email[at+1:]
	if len(local) == 1 {
		return local + Marker + "@" + domain
	}
	return local[:1] + Marker + local[len(local)-1:] + "@" + domain
}
