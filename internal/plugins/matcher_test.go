package plugins

import "testing"

func TestValidPattern(t *testing.T) {
	valid := []string{"*", "acme/widgets", "acme/*", "default", "Acme/Widgets"}
	for _, p := range valid {
		if !ValidPattern(p) {
			t.Errorf("ValidPattern(%q) = false, want true", p)
		}
	}

	invalid := []string{"", "*/widgets", "acme/*/deep", "ac*me/widgets", "*/*", "/*", "**"}
	for _, p := range invalid {
		if ValidPattern(p) {
			t.Errorf("ValidPattern(%q) = true, want false", p)
		}
	}
}

func TestMatchResource_Exact(t *testing.T) {
	if !MatchResource("acme/widgets", "acme/widgets") {
		t.Error("exact literal should match itself")
	}
	if MatchResource("acme/widgets", "acme/gadgets") {
		t.Error("exact literal should not match a different repo")
	}
	if MatchResource("acme/widgets", "acme/widgets2") {
		t.Error("exact literal must be anchored on the whole resource")
	}
}

func TestMatchResource_OwnerWildcard(t *testing.T) {
	if !MatchResource("acme/*", "acme/widgets") {
		t.Error("owner wildcard should match any repo under the owner")
	}
	if MatchResource("acme/*", "other/widgets") {
		t.Error("owner wildcard should not match a different owner")
	}
	// A resource with fewer segments than the pattern demands never matches.
	if MatchResource("acme/*", "somestring") {
		t.Error("owner wildcard should not match a single-segment resource")
	}
	if MatchResource("acme/*", "acmecorp/widgets") {
		t.Error("owner segment must match exactly, not as a prefix")
	}
}

func TestMatchResource_Global(t *testing.T) {
	for _, r := range []string{"acme/widgets", "somestring", "default", ""} {
		if !MatchResource("*", r) {
			t.Errorf("global wildcard should match %q", r)
		}
	}
}

func TestMatchResource_CaseFolding(t *testing.T) {
	// select(R) == select(lower(R)) == select(upper(R)) for ASCII R.
	cases := [][2]string{
		{"acme/widgets", "ACME/WIDGETS"},
		{"ACME/*", "acme/widgets"},
		{"Acme/Widgets", "aCME/wIDGETS"},
	}
	for _, c := range cases {
		if !MatchResource(c[0], c[1]) {
			t.Errorf("MatchResource(%q, %q) = false, want true", c[0], c[1])
		}
	}

	// Folding applies to ASCII letters only.
	if MatchResource("acmé/widgets", "acmÉ/widgets") {
		t.Error("non-ASCII letters must not be folded")
	}
}
