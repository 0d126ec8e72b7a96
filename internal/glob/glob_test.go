package glob

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "main.rs", false},
		{"src/**", "src/utils/helpers.py", true},
		{"src/**", "src/main.py", true},
		{"src/**", "src", true},
		{"src/**", "docs/readme.md", false},
		{"**/*.go", "internal/http/router.go", true},
		{"internal/*.go", "internal/http.go", true},
		{"internal/*.go", "internal/http/router.go", false},
		{"src/[a-z]*.py", "src/main.py", true},
		{"src/[A-Z]*.py", "src/main.py", false},
		{"docs/*.md", "docs/readme.md", true},
	}
	for _, tt := range tests {
		got, err := Match(tt.pattern, tt.path)
		if err != nil {
			t.Errorf("Match(%q, %q) error: %v", tt.pattern, tt.path, err)
			continue
		}
		if got != tt.match {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.match)
		}
	}
}

func TestMatchLiteralMetacharacters(t *testing.T) {
	// Metacharacters in the concrete path must not widen the match.
	got, err := Match("docs/a.md", "docs/[ab].md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatal("path containing brackets matched a literal pattern")
	}
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		a, b    string
		overlap bool
	}{
		{"*.go", "*.go", true},
		{"*.go", "*.rs", false},
		{"foo.go", "bar.go", false},
		{"*.go", "main.go", true},
		{"internal/*.go", "pkg/*.go", false},
		{"pkg/*/reconcile.go", "pkg/events/*.go", true},
		{"src/**", "src/utils/*.py", true},
		{"src/**", "docs/**", false},
		{"**", "anything/at/all", true},
		{"src/[a-z]*.go", "src/main.go", true},
	}
	for _, tt := range tests {
		got, err := Overlap(tt.a, tt.b)
		if err != nil {
			t.Errorf("Overlap(%q, %q) error: %v", tt.a, tt.b, err)
			continue
		}
		if got != tt.overlap {
			t.Errorf("Overlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.overlap)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("internal/http/*.go"); err != nil {
		t.Fatalf("normal pattern rejected: %v", err)
	}
	complex := "?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?/?"
	if err := Validate(complex); err == nil {
		t.Fatal("expected complexity error for pattern with many wildcards")
	}
	if err := Validate("src/[a-.go"); err == nil {
		t.Fatal("expected error for unterminated class")
	}
}
