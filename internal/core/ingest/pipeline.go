package ingest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/paths"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// ThumbnailDirName is the directory under the project root that receives
// generated thumbnails.
const ThumbnailDirName = "thumbnails"

// DefaultThumbnailHeight is the fixed height thumbnails are scaled to.
const DefaultThumbnailHeight = 200

// Store is the slice of the project repository the pipeline writes through.
type Store interface {
	CreateProject(project *models.Project) error
	CreateCategory(category *models.Category) error
	CreateImages(images []models.Image) error
}

// Request describes one project-creation job.
type Request struct {
	Name        string
	ProjectPath string
	DataPath    string
}

// Pipeline ingests a dataset directory into a project store.
type Pipeline struct {
	store           Store
	thumbnailHeight int
}

// NewPipeline creates a pipeline over one project's store. height <= 0
// selects DefaultThumbnailHeight.
func NewPipeline(store Store, thumbnailHeight int) *Pipeline {
	if thumbnailHeight <= 0 {
		thumbnailHeight = DefaultThumbnailHeight
	}
	return &Pipeline{store: store, thumbnailHeight: thumbnailHeight}
}

// ValidateRequest checks the structural preconditions of a job. A violation
// is fatal and reported before any filesystem mutation, so callers can run
// the same check before creating the project store.
func ValidateRequest(req Request) error {
	if info, err := os.Stat(req.ProjectPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("project path %s is not a directory", req.ProjectPath)
		}
		entries, err := os.ReadDir(req.ProjectPath)
		if err != nil {
			return fmt.Errorf("failed to read project directory: %w", err)
		}
		for _, entry := range entries {
			// The store file is created when the project store opens,
			// before the pipeline runs; it does not count as content.
			if strings.HasPrefix(entry.Name(), db.StoreFileName) {
				continue
			}
			return fmt.Errorf("project directory %s is not empty", req.ProjectPath)
		}
	}

	info, err := os.Stat(req.DataPath)
	if err != nil {
		return fmt.Errorf("dataset directory %s does not exist", req.DataPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("dataset path %s is not a directory", req.DataPath)
	}
	return nil
}

// Run executes one project-creation job. Per-file thumbnail or metadata
// failures are warnings and skip only the offending file; structural
// failures abort the job with a terminal error.
func (p *Pipeline) Run(ctx context.Context, req Request, sink progress.Sink) (*models.Project, error) {
	reporter := progress.NewReporter(sink)

	fail := func(err error) (*models.Project, error) {
		reporter.Fail(err.Error())
		return nil, err
	}

	if err := ValidateRequest(req); err != nil {
		return fail(err)
	}

	// Phase 1: writing project files (0-10%).
	reporter.Report(0, "Writing project files", "Preparing project directory")
	thumbDir := filepath.Join(req.ProjectPath, ThumbnailDirName)
	if err := os.MkdirAll(thumbDir, 0750); err != nil {
		return fail(fmt.Errorf("failed to create thumbnail directory: %w", err))
	}

	project := &models.Project{
		Path:     req.ProjectPath,
		Name:     req.Name,
		DataPath: req.DataPath,
		Os:       runtime.GOOS,
	}
	if err := p.store.CreateProject(project); err != nil {
		return fail(fmt.Errorf("failed to create project record: %w", err))
	}

	// Phase 2: collecting images (10%).
	categories, err := paths.ScanDataset(req.DataPath)
	if err != nil {
		return fail(err)
	}
	totalFiles := 0
	for _, category := range categories {
		for _, relPath := range category.Files {
			totalFiles++
			reporter.Report(10, "Collecting images",
				fmt.Sprintf("Found %s in %s", relPath, category.Name))
		}
	}
	log.Infof("Dataset %s: %d categories, %d images", req.DataPath, len(categories), totalFiles)

	// Phase 3: generating thumbnails (10-100%). Files are processed by a
	// worker pool; results are committed in input order so the thumbnail
	// sequence numbers stay dense and deterministic. Workers write to
	// temporary names, the commit loop renames successes into place.
	pool := newWorkerPool(p)
	defer pool.Shutdown()

	processed := 0
	thumbIndex := 0
	dispatched := 0
	for _, categoryFiles := range categories {
		category := &models.Category{
			ProjectID: project.ID,
			Name:      categoryFiles.Name,
			Path:      categoryFiles.Path,
		}
		if err := p.store.CreateCategory(category); err != nil {
			return fail(fmt.Errorf("failed to create category %q: %w", category.Name, err))
		}

		sources := make([]string, len(categoryFiles.Files))
		tmpPaths := make([]string, len(categoryFiles.Files))
		resultChans := make([]chan *thumbnailResult, len(categoryFiles.Files))
		for i, relPath := range categoryFiles.Files {
			sources[i] = paths.ResolveImagePath(req.DataPath, categoryFiles.Path, relPath)
			tmpPaths[i] = filepath.Join(thumbDir, fmt.Sprintf("tmp-%d.jpg", dispatched))
			resultChans[i] = make(chan *thumbnailResult, 1)
			dispatched++
			pool.Submit(&thumbnailJob{
				ctx:        ctx,
				sourcePath: sources[i],
				thumbPath:  tmpPaths[i],
				resultCh:   resultChans[i],
			})
		}

		batch := make([]models.Image, 0, len(categoryFiles.Files))
		for i, relPath := range categoryFiles.Files {
			if err := ctx.Err(); err != nil {
				return fail(fmt.Errorf("project creation cancelled: %w", err))
			}

			result := <-resultChans[i]
			if result.err != nil {
				reporter.Warn(fmt.Sprintf("skipping %s: %v", sources[i], result.err))
			} else {
				thumbnail := filepath.Join(ThumbnailDirName, fmt.Sprintf("%d.jpg", thumbIndex))
				if err := os.Rename(tmpPaths[i], filepath.Join(req.ProjectPath, thumbnail)); err != nil {
					reporter.Warn(fmt.Sprintf("skipping %s: %v", sources[i], err))
				} else {
					record := result.image
					record.CategoryID = category.ID
					record.Path = relPath
					record.Name = filepath.Base(relPath)
					record.Thumbnail = thumbnail
					batch = append(batch, *record)
					thumbIndex++
				}
			}

			processed++
			reporter.Report(10+90*float64(processed)/float64(totalFiles),
				"Generating thumbnails", fmt.Sprintf("Processed %s", relPath))
		}

		if err := p.store.CreateImages(batch); err != nil {
			return fail(fmt.Errorf("failed to persist images for category %q: %w", category.Name, err))
		}
	}

	reporter.Report(100, "Generating thumbnails", "All images processed")
	reporter.Complete(fmt.Sprintf("Project %q created with %d images", req.Name, thumbIndex))
	return project, nil
}

// processFile generates the thumbnail for one source image and reads its
// metadata back from the original file. Any failure here is recoverable:
// the caller records a warning and moves on.
func (p *Pipeline) processFile(sourcePath, thumbnailPath string) (*models.Image, error) {
	source, err := imaging.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Fixed-height scale with aspect ratio preserved, flattened onto white
	// to normalize transparency before the JPEG encode.
	resized := imaging.Resize(source, 0, p.thumbnailHeight, imaging.Lanczos)
	canvas := imaging.New(resized.Bounds().Dx(), resized.Bounds().Dy(), color.White)
	flattened := imaging.OverlayCenter(canvas, resized, 1.0)
	if err := imaging.Save(flattened, thumbnailPath); err != nil {
		return nil, fmt.Errorf("failed to write thumbnail: %w", err)
	}

	width, height, format, size, err := readMetadata(sourcePath)
	if err != nil {
		return nil, err
	}
	return &models.Image{
		Width:     width,
		Height:    height,
		Format:    format,
		SizeBytes: size,
	}, nil
}

// readMetadata extracts dimensions, format and byte size from the original
// file without decoding the full image.
func readMetadata(path string) (width, height int, format string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	config, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, "", 0, fmt.Errorf("failed to read image metadata: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, 0, "", 0, err
	}
	return config.Width, config.Height, format, info.Size(), nil
}
