package handlers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/glmanhtu/PapyrusViz-sub000/config"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/api/middleware"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/ingest"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/jobs"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db/repository"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/server/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// APIHandler serves the project server's API.
type APIHandler struct {
	manager *db.Manager
	cfg     *config.Config
	runner  *jobs.Runner
	hub     *sse.Hub
}

// NewAPIHandler creates the handler with its dependencies.
func NewAPIHandler(manager *db.Manager, cfg *config.Config, runner *jobs.Runner, hub *sse.Hub) *APIHandler {
	return &APIHandler{manager: manager, cfg: cfg, runner: runner, hub: hub}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Projects
	router.POST("/projects", h.CreateProject)
	router.GET("/projects", h.ListProjects)
	router.GET("/projects/detail", h.GetProject)
	router.GET("/projects/images", h.ListImages)
	router.GET("/projects/thumbnails/:name", h.GetThumbnail)

	// Matchings
	router.POST("/matchings", h.CreateMatching)
	router.GET("/matchings", h.ListMatchings)
	router.GET("/matchings/active", h.GetActiveMatching)
	router.POST("/matchings/:id/activate", h.ActivateMatching)
	router.GET("/matchings/:id/neighbors", h.NearestNeighbors)

	// Assemblings
	router.POST("/assemblings", h.CreateAssembling)
	router.GET("/assemblings", h.ListAssemblings)
	router.POST("/assemblings/:id/activate", h.ActivateAssembling)
	router.GET("/assemblings/:id/images", h.ListAssemblingImages)
	router.POST("/assemblings/:id/images", h.AddAssemblingImage)
	router.PUT("/assemblings/:id/images/:imageId", h.UpdateAssemblingImage)
	router.DELETE("/assemblings/:id/images/:imageId", h.RemoveAssemblingImage)

	// Jobs
	router.GET("/jobs/:id", h.GetJob)
	router.GET("/jobs/:id/events", h.StreamJobEvents)

	// System
	router.GET("/system/status", h.GetSystemStatus)
}

// openRepository opens the project store named by the `path` query
// parameter (or the given explicit path) and returns its repository with
// the project row.
func (h *APIHandler) openRepository(c *gin.Context, projectPath string) (repository.Repository, *models.Project, bool) {
	t := middleware.T(c)
	if projectPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.project_path_required")})
		return nil, nil, false
	}
	store, err := h.manager.Open(projectPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.store_open_failed"), err)})
		return nil, nil, false
	}
	repo := repository.New(store, h.cfg.Ingest.BatchSize)
	project, err := repo.GetProject()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": t("errors.project_not_found")})
		return nil, nil, false
	}
	return repo, project, true
}

func pagination(c *gin.Context) (limit, offset int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}

// createProjectRequest is the dataset ingestion entry point payload.
type createProjectRequest struct {
	Name     string `json:"name" binding:"required"`
	Path     string `json:"path" binding:"required"`
	DataPath string `json:"data_path" binding:"required"`
}

// CreateProject starts a project-import job and returns its id. Progress
// streams over /jobs/:id/events.
func (h *APIHandler) CreateProject(c *gin.Context) {
	t := middleware.T(c)
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.invalid_request"), err)})
		return
	}

	request := ingest.Request{
		Name:        req.Name,
		ProjectPath: req.Path,
		DataPath:    req.DataPath,
	}
	// Opening the store creates the project database inside req.Path, so the
	// path checks must run first or a rejected request would still leave a
	// store file behind.
	if err := ingest.ValidateRequest(request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.invalid_request"), err)})
		return
	}

	store, err := h.manager.Open(req.Path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.store_open_failed"), err)})
		return
	}

	repo := repository.New(store, h.cfg.Ingest.BatchSize)
	pipeline := ingest.NewPipeline(repo, h.cfg.Ingest.ThumbnailHeight)
	job := h.runner.Submit(jobs.KindProjectImport, store, func(ctx context.Context, sink progress.Sink) error {
		_, err := pipeline.Run(ctx, request, sink)
		return err
	})

	log.Infof("Accepted project import %s for %s", job.ID, req.Path)
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// ListProjects returns the projects opened during this session.
func (h *APIHandler) ListProjects(c *gin.Context) {
	var projects []models.Project
	for _, path := range h.manager.Paths() {
		store, err := h.manager.Open(path)
		if err != nil {
			continue
		}
		project, err := repository.New(store, h.cfg.Ingest.BatchSize).GetProject()
		if err != nil || project == nil {
			continue
		}
		projects = append(projects, *project)
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject returns one project with its categories.
func (h *APIHandler) GetProject(c *gin.Context) {
	repo, project, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	categories, err := repo.ListCategories(project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":    project,
		"categories": categories,
	})
}

// ListImages returns a page of thumbnails, filtered by category and name
// substring, ordered by name.
func (h *APIHandler) ListImages(c *gin.Context) {
	repo, _, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}

	categoryID, _ := strconv.Atoi(c.DefaultQuery("category_id", "0"))
	filter := c.Query("filter")
	limit, offset := pagination(c)

	images, total, err := repo.ListImages(uint(categoryID), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"images": images,
		"total":  total,
	})
}

// GetThumbnail serves one generated thumbnail file from the project
// directory.
func (h *APIHandler) GetThumbnail(c *gin.Context) {
	_, project, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	// filepath.Base strips any traversal components from the name.
	name := filepath.Base(c.Param("name"))
	c.File(filepath.Join(project.Path, ingest.ThumbnailDirName, name))
}
