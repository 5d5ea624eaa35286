package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/ingest"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"

	log "github.com/sirupsen/logrus"
)

// Service removes thumbnail files that no image record references. A
// thumbnail becomes orphaned when an import job fails after writing files
// but before its batch is committed.
type Service struct {
	manager       *db.Manager
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates the cleanup service. A non-positive interval disables
// it and returns nil.
func NewService(manager *db.Manager, checkInterval time.Duration) *Service {
	if checkInterval <= 0 {
		log.Info("Automatic thumbnail cleanup disabled (interval <= 0).")
		return nil
	}
	log.Infof("Initializing cleanup service: CheckInterval=%s", checkInterval)
	return &Service{
		manager:       manager,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the
// cleanup cycle over every open project store.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	ticker := time.NewTicker(s.checkInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle sweeps every open project once.
func (s *Service) RunCleanupCycle() {
	if s == nil {
		return
	}
	for _, projectPath := range s.manager.Paths() {
		if err := s.sweepProject(projectPath); err != nil {
			log.Errorf("Cleanup: sweep of %s failed: %v", projectPath, err)
		}
	}
}

// sweepProject deletes thumbnail files under one project directory that no
// image row references.
func (s *Service) sweepProject(projectPath string) error {
	store, err := s.manager.Open(projectPath)
	if err != nil {
		return err
	}

	// Imports write thumbnails before committing rows; a sweep racing a
	// running import must not delete files the pending batch references.
	store.LockWrites()
	defer store.UnlockWrites()

	var referenced []string
	if err := store.DB.Model(&models.Image{}).Pluck("thumbnail", &referenced).Error; err != nil {
		return err
	}
	// Image rows store thumbnails as project-relative paths; compare by
	// file name.
	known := make(map[string]struct{}, len(referenced))
	for _, name := range referenced {
		known[filepath.Base(name)] = struct{}{}
	}

	thumbDir := filepath.Join(projectPath, ingest.ThumbnailDirName)
	entries, err := os.ReadDir(thumbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(thumbDir, entry.Name())); err != nil {
			log.Warnf("Cleanup: failed to delete orphaned thumbnail %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("Cleanup: removed %d orphaned thumbnail(s) from %s", removed, thumbDir)
	}
	return nil
}
