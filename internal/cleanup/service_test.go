package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"
)

func TestRunCleanupCycle_RemovesOnlyOrphanedThumbnails(t *testing.T) {
	manager := db.NewManager()
	projectPath := filepath.Join(t.TempDir(), "project")
	store, err := manager.Open(projectPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	image := models.Image{
		CategoryID: 1,
		Path:       "a.jpg",
		Name:       "a.jpg",
		Thumbnail:  filepath.Join("thumbnails", "0.jpg"),
	}
	if err := store.DB.Create(&image).Error; err != nil {
		t.Fatalf("create image: %v", err)
	}

	thumbDir := filepath.Join(projectPath, "thumbnails")
	if err := os.MkdirAll(thumbDir, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"0.jpg", "1.jpg", "tmp-3.jpg"} {
		if err := os.WriteFile(filepath.Join(thumbDir, name), []byte("x"), 0640); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	service := NewService(manager, time.Hour)
	service.RunCleanupCycle()

	if _, err := os.Stat(filepath.Join(thumbDir, "0.jpg")); err != nil {
		t.Fatalf("referenced thumbnail was removed: %v", err)
	}
	for _, name := range []string{"1.jpg", "tmp-3.jpg"} {
		if _, err := os.Stat(filepath.Join(thumbDir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed, stat err: %v", name, err)
		}
	}
}

func TestRunCleanupCycle_MissingThumbnailDirIsFine(t *testing.T) {
	manager := db.NewManager()
	if _, err := manager.Open(filepath.Join(t.TempDir(), "project")); err != nil {
		t.Fatalf("open store: %v", err)
	}

	service := NewService(manager, time.Hour)
	service.RunCleanupCycle()
}

func TestNewService_DisabledWhenIntervalNonPositive(t *testing.T) {
	if service := NewService(db.NewManager(), 0); service != nil {
		t.Fatalf("expected nil service")
	}
	// Nil receivers are safe no-ops.
	var service *Service
	service.StartBackgroundCleanup()
	service.StopBackgroundCleanup()
	service.RunCleanupCycle()
}
