package version_test

import (
	"testing"

	v "github.com/automatable/automatable-website/internal/version"
)

func TestGet_VCSDirtyFromLdflags(t *testing.T) {
	orig := v.VCSDirty
	t.Cleanup(func() { v.VCSDirty = orig })

	trueVal := true
	v.VCSDirty = &trueVal
	if info := v.Get(); info.VCSDirty == nil || !*info.VCSDirty {
		t.Fatalf("VCSDirty = %v, want true", info.VCSDirty)
	}

	falseVal := false
	v.VCSDirty = &falseVal
	if info := v.Get(); info.VCSDirty == nil || *info.VCSDirty {
		t.Fatalf("VCSDirty = %v, want false", info.VCSDirty)
	}
}

func TestGet_LdflagsCommitWins(t *testing.T) {
	orig := v.Commit
	t.Cleanup(func() { v.Commit = orig })

	v.Commit = "0123456789abcdef0123"
	info := v.Get()
	if info.Commit != "0123456789abcdef0123" {
		t.Fatalf("Commit = %q", info.Commit)
	}
	if info.ShortCommit() != "0123456789ab" {
		t.Fatalf("ShortCommit = %q", info.ShortCommit())
	}
	if info.AppName != v.AppName {
		t.Fatalf("AppName = %q", info.AppName)
	}
}

func TestShortCommit_Short(t *testing.T) {
	if got := (v.Info{Commit: "none"}).ShortCommit(); got != "none" {
		t.Fatalf("ShortCommit = %q", got)
	}
}
