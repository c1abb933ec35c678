/*
NAME
  cachefile_test.go

DESCRIPTION
  cachefile_test.go tests cache policy behavior and path derivation.

AUTHOR
  Scott Barnard <scott@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package cachefile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldWrite(t *testing.T) {
	tests := []struct {
		mode   Mode
		frames int
		want   bool
	}{
		{Disable, 1000, false},
		{AutoSubTree, 99, false},
		{AutoSubTree, 100, true},
		{AlwaysSubTree, 1, true},
		{AutoAbsolute, 99, false},
		{AutoAbsolute, 100, true},
		{AlwaysAbsolute, 0, true},
	}
	for _, tt := range tests {
		if got := tt.mode.ShouldWrite(tt.frames); got != tt.want {
			t.Errorf("Mode(%d).ShouldWrite(%d) = %v, want %v", tt.mode, tt.frames, got, tt.want)
		}
	}
}

func TestPathAbsolute(t *testing.T) {
	if got, want := Path(AlwaysAbsolute, "/tmp/cachebase", "/media/clip.mkv", 0), "/tmp/cachebase.0.bsindex"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	// Empty base falls back to the source path itself.
	if got, want := Path(AutoAbsolute, "", "/media/clip.mkv", 2), "/media/clip.mkv.2.bsindex"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestPathSubTreeMangling(t *testing.T) {
	got := Path(AlwaysSubTree, "/cache", `/media/what?*<>|".mkv`, 1)
	want := filepath.Join("/cache", "media", `what______.mkv`) + ".1.bsindex"
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	// Scheme separators become directory separators so URL-ish sources
	// nest instead of colliding.
	got = Path(AlwaysSubTree, "/cache", "https://example.org/clip.mp4", 0)
	want = filepath.Join("/cache", "https", "example.org", "clip.mp4") + ".0.bsindex"
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestCreateMakesParents(t *testing.T) {
	base := t.TempDir()
	f, err := Create(AlwaysSubTree, base, "/deeply/nested/clip.wav", 0)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	name := f.Name()
	f.Close()

	if _, err := os.Stat(name); err != nil {
		t.Errorf("created cache file missing: %v", err)
	}
	if _, err := Open(AlwaysSubTree, base, "/deeply/nested/clip.wav", 0); err != nil {
		t.Errorf("Open() after Create() failed: %v", err)
	}
}
