package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"

	"github.com/glebarez/sqlite" // pure Go SQLite driver
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StoreFileName is the name of the SQLite file inside a project directory.
const StoreFileName = "project.db"

// Store is the structured store of one project. Writers must hold the write
// lock; concurrent jobs against the same project serialize through it.
type Store struct {
	DB   *gorm.DB
	path string
	mu   sync.Mutex
}

// Path returns the project directory this store belongs to.
func (s *Store) Path() string {
	return s.path
}

// LockWrites serializes write access to this project's store.
func (s *Store) LockWrites() {
	s.mu.Lock()
}

// UnlockWrites releases the write lock.
func (s *Store) UnlockWrites() {
	s.mu.Unlock()
}

// Manager hands out one long-lived Store per project path.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates an empty store manager.
func NewManager() *Manager {
	return &Manager{stores: make(map[string]*Store)}
}

// Open returns the store for projectPath, opening and migrating it on first
// use. The connection is cached for the lifetime of the manager.
func (m *Manager) Open(projectPath string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[projectPath]; ok {
		return store, nil
	}

	if err := os.MkdirAll(projectPath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	dbFile := filepath.Join(projectPath, StoreFileName)
	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Opening project store: %s", dbFile)
	gdb, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open project store: %w", err)
	}

	if err := gdb.AutoMigrate(
		&models.Project{},
		&models.Category{},
		&models.Image{},
		&models.Assembling{},
		&models.AssemblingImage{},
		&models.Matching{},
		&models.MatchingScore{},
		&models.UserConfig{},
	); err != nil {
		return nil, fmt.Errorf("project store migration failed: %w", err)
	}

	store := &Store{DB: gdb, path: projectPath}
	m.stores[projectPath] = store
	return store, nil
}

// Paths lists the project paths opened during this session, sorted.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.stores))
	for p := range m.stores {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
