package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/api/middleware"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"

	"github.com/gin-gonic/gin"
)

// createAssemblingRequest creates an empty assembling canvas.
type createAssemblingRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateAssembling creates a new assembling for the project and activates it.
func (h *APIHandler) CreateAssembling(c *gin.Context) {
	t := middleware.T(c)
	repo, project, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	var req createAssemblingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.invalid_request"), err)})
		return
	}

	assembling := &models.Assembling{
		ProjectID: project.ID,
		Name:      req.Name,
	}
	if err := repo.CreateAssembling(assembling); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := repo.ActivateAssembling(project.ID, assembling.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	assembling.Activated = true
	c.JSON(http.StatusCreated, gin.H{"assembling": assembling})
}

// ListAssemblings returns all assemblings of a project.
func (h *APIHandler) ListAssemblings(c *gin.Context) {
	repo, project, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	assemblings, err := repo.ListAssemblings(project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assemblings": assemblings})
}

// ActivateAssembling switches the project's active assembling.
func (h *APIHandler) ActivateAssembling(c *gin.Context) {
	t := middleware.T(c)
	repo, project, ok := h.openRepository(c, c.Query("path"))
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_id")})
		return
	}
	if err := repo.ActivateAssembling(project.ID, uint(id)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// assemblingImageRequest places or moves one image on the canvas.
type assemblingImageRequest struct {
	ImageID    uint              `json:"image_id" binding:"required"`
	Transforms models.Transforms `json:"transforms"`
}

// AddAssemblingImage places an image on the assembling canvas.
func (h *APIHandler) AddAssemblingImage(c *gin.Context) {
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
	var req assemblingImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.invalid_request"), err)})
		return
	}

	entry, err := repo.AddAssemblingImage(uint(id), req.ImageID, req.Transforms)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"image": entry})
}

// UpdateAssemblingImage updates the transforms of a placed image.
func (h *APIHandler) UpdateAssemblingImage(c *gin.Context) {
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
	imageID, err := strconv.ParseUint(c.Param("imageId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_id")})
		return
	}
	var req struct {
		Transforms models.Transforms `json:"transforms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", t("errors.invalid_request"), err)})
		return
	}

	if err := repo.UpdateAssemblingImage(uint(id), uint(imageID), req.Transforms); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveAssemblingImage takes an image off the canvas.
func (h *APIHandler) RemoveAssemblingImage(c *gin.Context) {
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
	imageID, err := strconv.ParseUint(c.Param("imageId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": t("errors.invalid_id")})
		return
	}
	if err := repo.RemoveAssemblingImage(uint(id), uint(imageID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAssemblingImages returns the placed images with parsed transforms.
func (h *APIHandler) ListAssemblingImages(c *gin.Context) {
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
	entries, err := repo.ListAssemblingImages(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type placedImage struct {
		models.AssemblingImage
		Parsed models.Transforms `json:"parsed_transforms"`
	}
	out := make([]placedImage, 0, len(entries))
	for _, entry := range entries {
		parsed, err := models.UnmarshalTransforms(entry.Transforms)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, placedImage{AssemblingImage: entry, Parsed: parsed})
	}
	c.JSON(http.StatusOK, gin.H{"images": out})
}
