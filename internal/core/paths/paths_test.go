package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("x"), 0640); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsImageFile_AcceptsKnownExtensionsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.Png"} {
		if !IsImageFile(name) {
			t.Fatalf("expected %q to be accepted", name)
		}
	}
	for _, name := range []string{"a.gif", "b.txt", "noext", "d.jpg.bak"} {
		if IsImageFile(name) {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestScanDataset_CategoriesAndRootImages(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "alpha", "a1.jpg"))
	touch(t, filepath.Join(root, "alpha", "a2.png"))
	touch(t, filepath.Join(root, "beta", "b1.jpeg"))
	touch(t, filepath.Join(root, "beta", "notes.txt"))
	touch(t, filepath.Join(root, "loose.jpg"))
	touch(t, filepath.Join(root, "readme.md"))

	categories, err := ScanDataset(root)
	if err != nil {
		t.Fatalf("ScanDataset: %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(categories))
	}

	if categories[0].Name != "alpha" || len(categories[0].Files) != 2 {
		t.Fatalf("unexpected first category: %+v", categories[0])
	}
	if categories[1].Name != "beta" || len(categories[1].Files) != 1 {
		t.Fatalf("unexpected second category: %+v", categories[1])
	}

	last := categories[len(categories)-1]
	if !last.IsRoot() || last.Name != RootCategoryName {
		t.Fatalf("expected root category last, got %+v", last)
	}
	if len(last.Files) != 1 || last.Files[0] != "loose.jpg" {
		t.Fatalf("unexpected root files: %v", last.Files)
	}
}

func TestScanDataset_FlattensNestedDirectories(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "alpha", "a1.jpg"))
	touch(t, filepath.Join(root, "alpha", "deep", "deeper", "a2.jpg"))

	categories, err := ScanDataset(root)
	if err != nil {
		t.Fatalf("ScanDataset: %v", err)
	}
	if len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}
	files := categories[0].Files
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	want := filepath.Join("deep", "deeper", "a2.jpg")
	if files[0] != "a1.jpg" || files[1] != want {
		t.Fatalf("unexpected relative paths: %v", files)
	}
}

func TestScanDataset_EmptyDirectoryStillYieldsCategory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	categories, err := ScanDataset(root)
	if err != nil {
		t.Fatalf("ScanDataset: %v", err)
	}
	if len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}
	if categories[0].Name != "empty" || len(categories[0].Files) != 0 {
		t.Fatalf("unexpected category: %+v", categories[0])
	}
}

func TestScanDataset_NoRootCategoryWithoutLooseImages(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "alpha", "a1.jpg"))
	touch(t, filepath.Join(root, "notes.txt"))

	categories, err := ScanDataset(root)
	if err != nil {
		t.Fatalf("ScanDataset: %v", err)
	}
	for _, c := range categories {
		if c.IsRoot() {
			t.Fatalf("did not expect a root category: %+v", c)
		}
	}
}

func TestResolveImagePath_RootCategoryResolvesUnderDatasetRoot(t *testing.T) {
	got := ResolveImagePath("/data/set", "", "loose.jpg")
	if got != filepath.Join("/data/set", "loose.jpg") {
		t.Fatalf("unexpected path: %s", got)
	}
	got = ResolveImagePath("/data/set", "/data/set/alpha", filepath.Join("deep", "a.jpg"))
	if got != filepath.Join("/data/set/alpha", "deep", "a.jpg") {
		t.Fatalf("unexpected path: %s", got)
	}
}
