package paths

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RootCategoryName is the display name of the implicit catch-all category
// for images found directly under the dataset root.
const RootCategoryName = "All images"

// Only these extensions are ingested; everything else is silently ignored.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImageFile classifies a file name by its lower-cased extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// CategoryFiles is one category discovered in a dataset together with the
// relative paths of its images, in discovery order. Path is the absolute
// directory of the category; the root category has an empty Path.
type CategoryFiles struct {
	Name  string
	Path  string
	Files []string
}

// IsRoot reports whether this is the implicit root category.
func (c CategoryFiles) IsRoot() bool {
	return c.Path == ""
}

// ScanDataset enumerates the immediate children of the dataset root. Each
// top-level subdirectory becomes one category owning every image found
// anywhere below it; deeper nesting is flattened into that category.
// Loose image files at the root level go into the root category, which is
// appended last when present. A directory with no images still yields a
// category.
func ScanDataset(root string) ([]CategoryFiles, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var categories []CategoryFiles
	rootCategory := CategoryFiles{Name: RootCategoryName, Path: ""}

	for _, entry := range entries {
		if entry.IsDir() {
			dir := filepath.Join(root, entry.Name())
			files, err := collectImages(dir)
			if err != nil {
				return nil, err
			}
			categories = append(categories, CategoryFiles{
				Name:  entry.Name(),
				Path:  dir,
				Files: files,
			})
			continue
		}
		if entry.Type().IsRegular() && IsImageFile(entry.Name()) {
			rootCategory.Files = append(rootCategory.Files, entry.Name())
		}
	}

	if len(rootCategory.Files) > 0 {
		categories = append(categories, rootCategory)
	}
	return categories, nil
}

// collectImages walks dir recursively and returns the relative paths of all
// accepted image files, in walk order.
func collectImages(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !IsImageFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk category directory %s: %w", dir, err)
	}
	return files, nil
}

// ResolveImagePath joins a category's directory with an image's relative
// path. Root-category images resolve directly under the dataset root.
func ResolveImagePath(datasetRoot, categoryPath, relativePath string) string {
	if categoryPath == "" {
		return filepath.Join(datasetRoot, relativePath)
	}
	return filepath.Join(categoryPath, relativePath)
}
