package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/api/middleware"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/jobs"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/matching"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db/repository"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// createMatchingRequest is the matrix ingestion payload.
type createMatchingRequest struct {
	ProjectPath string `json:"project_path" binding:"required"`
	Name        string `json:"name" binding:"required"`
	File        string `json:"file" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Method      string `json:"method" binding:"required"`
}

// CreateMatching starts a matrix ingestion job and returns its id.
func (h *APIHandler) CreateMatching(c *gin.Context) {
	t := middleware.T(c)
	var req createMatchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.invalid_request"), err)})
		return
	}

	matchingType := models.MatchingType(req.Type)
	if matchingType != models.MatchingSimilarity && matchingType != models.MatchingDistance {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_matching_type")})
		return
	}
	method := models.MatchingMethod(req.Method)
	if method != models.MatchByName && method != models.MatchByPath {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_matching_method")})
		return
	}

	store, err := h.manager.Open(req.ProjectPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.store_open_failed"), err)})
		return
	}

	repo := repository.New(store, h.cfg.Ingest.BatchSize)
	engine := matching.NewEngine(repo)
	job := h.runner.Submit(jobs.KindMatchingIngest, store, func(ctx context.Context, sink progress.Sink) error {
		_, err := engine.Ingest(ctx, matching.Request{
			Name:   req.Name,
			File:   req.File,
			Type:   matchingType,
			Method: method,
		}, sink)
		return err
	})

	log.Infof("Accepted matching ingestion %s for %s", job.ID, req.ProjectPath)
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// ListMatchings returns all matchings of a project.
func (h *APIHandler) ListMatchings(c *gin.Context) {
	repo, project, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	matchings, err := repo.ListMatchings(project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matchings": matchings})
}

// GetActiveMatching returns the matching most recently activated for the
// project, or 404 when none has completed yet.
func (h *APIHandler) GetActiveMatching(c *gin.Context) {
	t := middleware.T(c)
	repo, _, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	value, err := repo.GetUserConfig(models.ConfigActivatedMatching)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if value == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": t("errors.no_active_matching")})
		return
	}
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	m, err := repo.GetMatchingByID(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": t("errors.matching_not_found")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matching": m})
}

// ActivateMatching marks one matching as the project's active one.
func (h *APIHandler) ActivateMatching(c *gin.Context) {
	t := middleware.T(c)
	repo, _, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_id")})
		return
	}
	m, err := repo.GetMatchingByID(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": t("errors.matching_not_found")})
		return
	}
	if err := repo.UpsertUserConfig(models.ConfigActivatedMatching, strconv.FormatUint(id, 10)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matching": m})
}

// NearestNeighbors returns a page of scored targets for one source image,
// best rank first.
func (h *APIHandler) NearestNeighbors(c *gin.Context) {
	t := middleware.T(c)
	repo, _, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	matchingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_id")})
		return
	}
	sourceID, err := strconv.ParseUint(c.Query("source_image_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.source_image_required")})
		return
	}
	limit, offset := pagination(c)

	scores, total, err := repo.NearestNeighbors(uint(matchingID), uint(sourceID), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scores": scores,
		"total":  total,
	})
}
