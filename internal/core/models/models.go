package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MatchingMethod selects how matrix labels are resolved to image records.
type MatchingMethod string

const (
	MatchByName MatchingMethod = "name"
	MatchByPath MatchingMethod = "path"
)

// MatchingType describes what the cells of an ingested matrix encode.
type MatchingType string

const (
	MatchingSimilarity MatchingType = "similarity"
	MatchingDistance   MatchingType = "distance"
)

// UserConfig keys for advisory state.
const (
	ConfigActivatedAssembling = "assembling.activated"
	ConfigActivatedMatching   = "matching.activated"
)

// Project is the root record of a project store. One store holds exactly
// one project row, keyed by the project directory path.
type Project struct {
	gorm.Model
	Path     string `gorm:"uniqueIndex;not null" json:"path"`
	Name     string `gorm:"not null" json:"name"`
	DataPath string `gorm:"not null" json:"data_path"`
	Os       string `json:"os"`
}

// Category groups the images of one top-level dataset subdirectory.
// The root category has an empty path and collects loose root-level images.
type Category struct {
	gorm.Model
	ProjectID uint   `gorm:"index;not null;uniqueIndex:idx_project_category_path" json:"project_id"`
	Name      string `gorm:"not null" json:"name"`
	Path      string `gorm:"uniqueIndex:idx_project_category_path" json:"path"`
}

// Image is one ingested dataset image. Path is relative to the owning
// category's directory, Thumbnail is relative to the project root.
type Image struct {
	gorm.Model
	CategoryID uint   `gorm:"index;not null;uniqueIndex:idx_category_image_path" json:"category_id"`
	Path       string `gorm:"not null;uniqueIndex:idx_category_image_path" json:"path"`
	Name       string `gorm:"index;not null" json:"name"`
	Thumbnail  string `json:"thumbnail"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Assembling is a named freeform canvas within a project. At most one
// assembling per project is activated at a time (advisory, for resuming
// the UI).
type Assembling struct {
	gorm.Model
	ProjectID  uint   `gorm:"index;not null" json:"project_id"`
	Name       string `gorm:"not null" json:"name"`
	Activated  bool   `gorm:"index" json:"activated"`
	ImageCount int    `json:"image_count"`
}

// AssemblingImage places one image on an assembling canvas. Transforms is
// stored as a JSON column; use the Transforms value object to read/write it.
type AssemblingImage struct {
	gorm.Model
	AssemblingID uint           `gorm:"index;not null;uniqueIndex:idx_assembling_image" json:"assembling_id"`
	ImageID      uint           `gorm:"not null;uniqueIndex:idx_assembling_image" json:"image_id"`
	Transforms   datatypes.JSON `gorm:"type:json" json:"transforms"`
}

// Transforms is the position/scale/rotation/stacking state of an image on a
// canvas. Defaults: scale 1, rotation 0, zIndex 0.
type Transforms struct {
	ZIndex   int     `json:"z_index"`
	Top      float64 `json:"top"`
	Left     float64 `json:"left"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
}

// Normalize applies defaults for zero-valued fields.
func (t *Transforms) Normalize() {
	if t.Scale == 0 {
		t.Scale = 1
	}
}

// Validate rejects transforms that the canvas cannot render.
func (t Transforms) Validate() error {
	if t.Scale <= 0 {
		return fmt.Errorf("transforms: scale must be positive, got %v", t.Scale)
	}
	return nil
}

// MarshalTransforms serializes a validated Transforms value for storage.
func MarshalTransforms(t Transforms) (datatypes.JSON, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transforms: %w", err)
	}
	return datatypes.JSON(data), nil
}

// UnmarshalTransforms reads a stored transforms column back into the value
// object, applying defaults for missing fields.
func UnmarshalTransforms(data datatypes.JSON) (Transforms, error) {
	var t Transforms
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t); err != nil {
			return t, fmt.Errorf("failed to unmarshal transforms: %w", err)
		}
	}
	t.Normalize()
	return t, nil
}

// Matching is one ingested similarity/distance job and its parameters.
type Matching struct {
	gorm.Model
	ProjectID uint           `gorm:"index;not null" json:"project_id"`
	Name      string         `gorm:"not null" json:"name"`
	File      string         `gorm:"not null" json:"file"`
	Method    MatchingMethod `gorm:"not null" json:"method"`
	Type      MatchingType   `gorm:"not null" json:"type"`
}

// MatchingScore is one ranked, normalized score. Score is always
// "higher = more similar"; Rank is a 1-based dense rank within the
// (matching, source image) group.
type MatchingScore struct {
	gorm.Model
	MatchingID    uint    `gorm:"index:idx_matching_source;not null;uniqueIndex:idx_matching_pair" json:"matching_id"`
	SourceImageID uint    `gorm:"index:idx_matching_source;not null;uniqueIndex:idx_matching_pair" json:"source_image_id"`
	TargetImageID uint    `gorm:"not null;uniqueIndex:idx_matching_pair" json:"target_image_id"`
	Score         float64 `gorm:"not null" json:"score"`
	Rank          int     `gorm:"not null" json:"rank"`
}

// UserConfig is a project-scoped key/value store for advisory state.
// Upserted by key, last write wins.
type UserConfig struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null" json:"key"`
	Value string `json:"value"`
}
