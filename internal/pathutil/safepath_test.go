package pathutil

import (
	"strings"
	"testing"
)

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/normal/path", false},
		{"/path/./here", true},
		{"/path/../up", true},
		{"..", true},
		{"/...", false},
		{"/.well-known/x", false},
		{"/path/to/.", true},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.path); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFSName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"css/site.css", "css/site.css", true},
		{"/favicon.svg", "favicon.svg", true},
		{"css//site.css", "css/site.css", true},
		{"", "", false},
		{"css/", "", false},
		{"../secret", "", false},
		{"css/./site.css", "", false},
		{"a\\b", "", false},
		{"a\x00b", "", false},
	}
	for _, tt := range tests {
		got, ok := FSName(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FSName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func FuzzFSName(f *testing.F) {
	for _, s := range []string{"css/site.css", "../x", "./x", "a/../../b", "....", "a\\b"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, p string) {
		name, ok := FSName(p)
		if !ok {
			return
		}
		if strings.HasPrefix(name, "/") || HasDotSegments(name) || strings.Contains(name, "\\") {
			t.Fatalf("FSName(%q) = %q escapes the root", p, name)
		}
	})
}
