package github

import "testing"

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"git@github.com:org/backend.git", "org/backend"},
		{"git@github.com:org/backend", "org/backend"},
		{"https://github.com/org/backend.git", "org/backend"},
		{"https://github.com/org/backend", "org/backend"},
		{"https://github.com/org/backend/", "org/backend"},
		{"https://gitlab.com/org/backend", ""},
		{"git@github.com:malformed", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseRepoURL(tt.url); got != tt.want {
			t.Errorf("ParseRepoURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParsePRURL(t *testing.T) {
	ref, ok := ParsePRURL("https://github.com/org/backend/pull/123")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ref.Owner != "org" || ref.Repo != "backend" || ref.Number != 123 {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	if _, ok := ParsePRURL("https://github.com/org/backend/pull/123/files"); !ok {
		t.Fatal("trailing /files should parse")
	}
	if _, ok := ParsePRURL("https://github.com/org/backend/issues/123"); ok {
		t.Fatal("issues URL must not parse as a PR")
	}
}

func TestParsePRShorthand(t *testing.T) {
	urls := map[string]string{
		"backend": "git@github.com:org/backend.git",
		"oddball": "https://example.com/not/github",
	}
	ref, ok := ParsePRShorthand("backend#42", urls)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if ref.FullName() != "org/backend" || ref.Number != 42 {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	if _, ok := ParsePRShorthand("unknown#1", urls); ok {
		t.Fatal("unknown repo name must not resolve")
	}
	if _, ok := ParsePRShorthand("oddball#1", urls); ok {
		t.Fatal("non-GitHub URL must not resolve")
	}
	if _, ok := ParsePRShorthand("backend@42", urls); ok {
		t.Fatal("malformed shorthand must not parse")
	}
}

func TestParsePRReference(t *testing.T) {
	urls := map[string]string{"backend": "https://github.com/org/backend"}

	if ref, ok := ParsePRReference("https://github.com/org/backend/pull/7", urls); !ok || ref.Number != 7 {
		t.Fatalf("URL form failed: %+v ok=%v", ref, ok)
	}
	if ref, ok := ParsePRReference("backend#7", urls); !ok || ref.Number != 7 {
		t.Fatalf("shorthand form failed: %+v ok=%v", ref, ok)
	}
	if _, ok := ParsePRReference("plainstring", urls); ok {
		t.Fatal("plain string must not parse")
	}
}
