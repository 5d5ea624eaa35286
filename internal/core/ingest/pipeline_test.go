package ingest

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/paths"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"

	"github.com/disintegration/imaging"
)

// memStore implements Store in memory with sequential ids.
type memStore struct {
	project    *models.Project
	categories []*models.Category
	images     []models.Image
}

func (s *memStore) CreateProject(project *models.Project) error {
	project.ID = 1
	s.project = project
	return nil
}

func (s *memStore) CreateCategory(category *models.Category) error {
	category.ID = uint(len(s.categories) + 1)
	s.categories = append(s.categories, category)
	return nil
}

func (s *memStore) CreateImages(images []models.Image) error {
	s.images = append(s.images, images...)
	return nil
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func runPipeline(t *testing.T, store Store, req Request, sink progress.Sink) (*models.Project, error) {
	t.Helper()
	return NewPipeline(store, DefaultThumbnailHeight).Run(context.Background(), req, sink)
}

func TestRun_IngestsDatasetWithCategoriesAndRootImages(t *testing.T) {
	dataset := t.TempDir()
	writeJPEG(t, filepath.Join(dataset, "alpha", "a1.jpg"), 400, 300)
	writePNG(t, filepath.Join(dataset, "alpha", "a2.png"), 300, 400)
	writeJPEG(t, filepath.Join(dataset, "beta", "nested", "b1.jpg"), 200, 200)
	writePNG(t, filepath.Join(dataset, "loose.png"), 100, 100)

	store := &memStore{}
	projectPath := filepath.Join(t.TempDir(), "project")
	collector := progress.NewCollector()

	project, err := runPipeline(t, store, Request{
		Name:        "demo",
		ProjectPath: projectPath,
		DataPath:    dataset,
	}, collector)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if project == nil || project.Name != "demo" {
		t.Fatalf("unexpected project: %+v", project)
	}

	if len(store.categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(store.categories))
	}
	last := store.categories[len(store.categories)-1]
	if last.Name != paths.RootCategoryName || last.Path != "" {
		t.Fatalf("expected root category last, got %+v", last)
	}

	if len(store.images) != 4 {
		t.Fatalf("expected 4 images, got %d", len(store.images))
	}
	for i, img := range store.images {
		want := filepath.Join(ThumbnailDirName, filepath.Base(img.Thumbnail))
		if img.Thumbnail != want {
			t.Fatalf("image %d thumbnail outside thumbnail dir: %s", i, img.Thumbnail)
		}
		if _, err := os.Stat(filepath.Join(projectPath, img.Thumbnail)); err != nil {
			t.Fatalf("thumbnail file missing for image %d: %v", i, err)
		}
	}

	messages := collector.Messages()
	if messages[len(messages)-1].Status != progress.StatusComplete {
		t.Fatalf("expected completion, got %+v", messages[len(messages)-1])
	}
}

func TestRun_CollectingPhaseReportsEveryFile(t *testing.T) {
	dataset := t.TempDir()
	writeJPEG(t, filepath.Join(dataset, "alpha", "a1.jpg"), 100, 100)
	writeJPEG(t, filepath.Join(dataset, "alpha", "a2.jpg"), 100, 100)
	writeJPEG(t, filepath.Join(dataset, "beta", "b1.jpg"), 100, 100)

	collector := progress.NewCollector()
	if _, err := runPipeline(t, &memStore{}, Request{
		Name:        "demo",
		ProjectPath: filepath.Join(t.TempDir(), "project"),
		DataPath:    dataset,
	}, collector); err != nil {
		t.Fatalf("Run: %v", err)
	}

	collecting := 0
	for _, m := range collector.Messages() {
		if m.Status == progress.StatusSuccess && m.Payload.Title == "Collecting images" {
			collecting++
		}
	}
	if collecting != 3 {
		t.Fatalf("expected one collecting message per file, got %d", collecting)
	}
}

func TestRun_ThumbnailsAreSequentialAndFixedHeight(t *testing.T) {
	dataset := t.TempDir()
	writeJPEG(t, filepath.Join(dataset, "alpha", "wide.jpg"), 800, 400)
	writePNG(t, filepath.Join(dataset, "alpha", "tall.png"), 300, 600)

	store := &memStore{}
	projectPath := filepath.Join(t.TempDir(), "project")

	if _, err := runPipeline(t, store, Request{
		Name:        "demo",
		ProjectPath: projectPath,
		DataPath:    dataset,
	}, progress.NewCollector()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, img := range store.images {
		wantName := filepath.Join(ThumbnailDirName, "0.jpg")
		if i == 1 {
			wantName = filepath.Join(ThumbnailDirName, "1.jpg")
		}
		if img.Thumbnail != wantName {
			t.Fatalf("image %d: expected thumbnail %s, got %s", i, wantName, img.Thumbnail)
		}

		thumb, err := imaging.Open(filepath.Join(projectPath, img.Thumbnail))
		if err != nil {
			t.Fatalf("open thumbnail %d: %v", i, err)
		}
		if thumb.Bounds().Dy() != DefaultThumbnailHeight {
			t.Fatalf("image %d: expected height %d, got %d", i, DefaultThumbnailHeight, thumb.Bounds().Dy())
		}
	}

	// Files are walked in lexical order: tall.png before wide.jpg.
	// Original metadata is read from the source, not the thumbnail.
	if store.images[0].Width != 300 || store.images[0].Height != 600 {
		t.Fatalf("unexpected metadata: %+v", store.images[0])
	}
	if store.images[0].Format != "png" || store.images[1].Format != "jpeg" {
		t.Fatalf("unexpected formats: %s / %s", store.images[0].Format, store.images[1].Format)
	}
}

func TestRun_CorruptFileIsSkippedWithWarning(t *testing.T) {
	dataset := t.TempDir()
	writeJPEG(t, filepath.Join(dataset, "alpha", "a.jpg"), 300, 300)
	if err := os.WriteFile(filepath.Join(dataset, "alpha", "broken.jpg"), []byte("not an image"), 0640); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	writeJPEG(t, filepath.Join(dataset, "alpha", "c.jpg"), 300, 300)

	store := &memStore{}
	projectPath := filepath.Join(t.TempDir(), "project")
	collector := progress.NewCollector()

	if _, err := runPipeline(t, store, Request{
		Name:        "demo",
		ProjectPath: projectPath,
		DataPath:    dataset,
	}, collector); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(store.images))
	}
	// Sequence numbers stay dense across the skipped file.
	if store.images[0].Thumbnail != filepath.Join(ThumbnailDirName, "0.jpg") ||
		store.images[1].Thumbnail != filepath.Join(ThumbnailDirName, "1.jpg") {
		t.Fatalf("expected dense numbering, got %s and %s",
			store.images[0].Thumbnail, store.images[1].Thumbnail)
	}

	warnings := collector.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
	if collector.Messages()[len(collector.Messages())-1].Status != progress.StatusComplete {
		t.Fatalf("expected the job to complete despite the corrupt file")
	}
}

func TestRun_NonEmptyProjectDirectoryFails(t *testing.T) {
	dataset := t.TempDir()
	writeJPEG(t, filepath.Join(dataset, "alpha", "a.jpg"), 100, 100)

	projectPath := t.TempDir()
	if err := os.WriteFile(filepath.Join(projectPath, "existing.txt"), []byte("x"), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}

	collector := progress.NewCollector()
	_, err := runPipeline(t, &memStore{}, Request{
		Name:        "demo",
		ProjectPath: projectPath,
		DataPath:    dataset,
	}, collector)
	if err == nil {
		t.Fatalf("expected an error")
	}
	messages := collector.Messages()
	if len(messages) != 1 || messages[0].Status != progress.StatusError {
		t.Fatalf("expected a single terminal error, got %+v", messages)
	}
}

func TestRun_ProjectDirectoryWithOnlyStoreFileIsAccepted(t *testing.T) {
	dataset := t.TempDir()
	writeJPEG(t, filepath.Join(dataset, "alpha", "a.jpg"), 100, 100)

	projectPath := t.TempDir()
	if err := os.WriteFile(filepath.Join(projectPath, "project.db"), []byte{}, 0640); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := runPipeline(t, &memStore{}, Request{
		Name:        "demo",
		ProjectPath: projectPath,
		DataPath:    dataset,
	}, progress.NewCollector()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_MissingDatasetFails(t *testing.T) {
	collector := progress.NewCollector()
	_, err := runPipeline(t, &memStore{}, Request{
		Name:        "demo",
		ProjectPath: filepath.Join(t.TempDir(), "project"),
		DataPath:    filepath.Join(t.TempDir(), "absent"),
	}, collector)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	dataset := t.TempDir()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		writeJPEG(t, filepath.Join(dataset, "alpha", name), 150, 150)
	}

	collector := progress.NewCollector()
	if _, err := runPipeline(t, &memStore{}, Request{
		Name:        "demo",
		ProjectPath: filepath.Join(t.TempDir(), "project"),
		DataPath:    dataset,
	}, collector); err != nil {
		t.Fatalf("Run: %v", err)
	}

	prev := -1.0
	for _, m := range collector.Messages() {
		if m.Status != progress.StatusSuccess {
			continue
		}
		if m.Payload.Percentage < prev {
			t.Fatalf("progress decreased: %v < %v", m.Payload.Percentage, prev)
		}
		prev = m.Payload.Percentage
	}
	if prev != 100 {
		t.Fatalf("expected final progress 100, got %v", prev)
	}
}
