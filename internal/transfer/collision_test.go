package transfer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFileCollisionAppendsSuffix(t *testing.T) {
	dir := t.TempDir()
	first := ResolveFileCollision(dir, "a.txt")
	os.WriteFile(first, []byte("x"), 0o644)

	second := ResolveFileCollision(dir, "a.txt")
	if second == first {
		t.Fatal("expected a distinct path on second collision")
	}
	if filepath.Base(second) != "a_1.txt" {
		t.Fatalf("expected a_1.txt, got %s", filepath.Base(second))
	}
	os.WriteFile(second, []byte("y"), 0o644)

	third := ResolveFileCollision(dir, "a.txt")
	if filepath.Base(third) != "a_2.txt" {
		t.Fatalf("expected a_2.txt, got %s", filepath.Base(third))
	}
}

func TestResolveFolderCollisionAppendsSuffix(t *testing.T) {
	dir := t.TempDir()
	first := ResolveFolderCollision(dir, "photos")
	os.Mkdir(first, 0o755)

	second := ResolveFolderCollision(dir, "photos")
	if filepath.Base(second) != "photos_1" {
		t.Fatalf("expected photos_1, got %s", filepath.Base(second))
	}
}

func TestSanitizeBasenameStripsDirectory(t *testing.T) {
	if got := SanitizeBasename("/etc/passwd"); got != "passwd" {
		t.Fatalf("expected passwd, got %s", got)
	}
	if got := SanitizeBasename("a/b/c.txt"); got != "c.txt" {
		t.Fatalf("expected c.txt, got %s", got)
	}
}

func TestSanitizeRelPathRejectsUpwardTraversal(t *testing.T) {
	cases := map[string]string{
		"a/b/c.txt":       "a/b/c.txt",
		"../../etc/passwd": "passwd",
		"/etc/passwd":      "passwd",
		"a/../../b.txt":    "b.txt",
	}
	for in, want := range cases {
		if got := SanitizeRelPath(in); got != want {
			t.Errorf("SanitizeRelPath(%q) = %q, want %q", in, got, want)
		}
	}
}
