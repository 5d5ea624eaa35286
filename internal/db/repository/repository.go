package repository

import (
	"errors"
	"fmt"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"

	"gorm.io/gorm"
)

// DefaultBatchSize is used for batched inserts when no size is configured.
const DefaultBatchSize = 100

// Repository defines the store operations of one project.
type Repository interface {
	// Project
	CreateProject(project *models.Project) error
	GetProject() (*models.Project, error)

	// Categories
	CreateCategory(category *models.Category) error
	ListCategories(projectID uint) ([]models.Category, error)

	// Images
	CreateImages(images []models.Image) error
	ListImages(categoryID uint, filter string, limit, offset int) ([]models.Image, int64, error)
	FindImagesByName(substring string) ([]models.Image, error)
	FindImagesByPath(substring string) ([]models.Image, error)

	// Matchings
	CreateMatching(matching *models.Matching) error
	GetMatchingByID(id uint) (*models.Matching, error)
	ListMatchings(projectID uint) ([]models.Matching, error)
	CreateMatchingScores(scores []models.MatchingScore) error
	NearestNeighbors(matchingID, sourceImageID uint, limit, offset int) ([]models.MatchingScore, int64, error)

	// Assemblings
	CreateAssembling(assembling *models.Assembling) error
	GetAssemblingByID(id uint) (*models.Assembling, error)
	ListAssemblings(projectID uint) ([]models.Assembling, error)
	ActivateAssembling(projectID, id uint) error
	AddAssemblingImage(assemblingID, imageID uint, transforms models.Transforms) (*models.AssemblingImage, error)
	UpdateAssemblingImage(assemblingID, imageID uint, transforms models.Transforms) error
	RemoveAssemblingImage(assemblingID, imageID uint) error
	ListAssemblingImages(assemblingID uint) ([]models.AssemblingImage, error)

	// UserConfig
	UpsertUserConfig(key, value string) error
	GetUserConfig(key string) (string, error)
}

// SQLiteRepository implements Repository on a project's SQLite store.
type SQLiteRepository struct {
	store     *db.Store
	batchSize int
}

// New creates a repository over the given store. batchSize <= 0 selects
// DefaultBatchSize.
func New(store *db.Store, batchSize int) *SQLiteRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLiteRepository{store: store, batchSize: batchSize}
}

// Project

func (r *SQLiteRepository) CreateProject(project *models.Project) error {
	return r.store.DB.Create(project).Error
}

// GetProject returns the project row of this store, or nil when the store
// has not been initialized yet.
func (r *SQLiteRepository) GetProject() (*models.Project, error) {
	var project models.Project
	result := r.store.DB.First(&project)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &project, nil
}

// Categories

func (r *SQLiteRepository) CreateCategory(category *models.Category) error {
	return r.store.DB.Create(category).Error
}

func (r *SQLiteRepository) ListCategories(projectID uint) ([]models.Category, error) {
	var categories []models.Category
	result := r.store.DB.Where("project_id = ?", projectID).Order("name ASC").Find(&categories)
	if result.Error != nil {
		return nil, result.Error
	}
	return categories, nil
}

// Images

// CreateImages inserts a batch of image rows. Each underlying batch runs in
// its own transaction; a failure leaves earlier batches committed.
func (r *SQLiteRepository) CreateImages(images []models.Image) error {
	if len(images) == 0 {
		return nil
	}
	return r.store.DB.CreateInBatches(images, r.batchSize).Error
}

// ListImages returns a page of images ordered by name. categoryID 0 selects
// all categories; filter narrows by name substring.
func (r *SQLiteRepository) ListImages(categoryID uint, filter string, limit, offset int) ([]models.Image, int64, error) {
	query := r.store.DB.Model(&models.Image{})
	if categoryID != 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	if filter != "" {
		query = query.Where("name LIKE ?", "%"+filter+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var images []models.Image
	result := query.Order("name ASC, id ASC").Limit(limit).Offset(offset).Find(&images)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return images, total, nil
}

// FindImagesByName returns all images whose display name contains substring,
// ordered by name then id so callers get a deterministic candidate order.
func (r *SQLiteRepository) FindImagesByName(substring string) ([]models.Image, error) {
	var images []models.Image
	result := r.store.DB.Where("name LIKE ?", "%"+substring+"%").
		Order("name ASC, id ASC").Find(&images)
	if result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

// FindImagesByPath returns all images whose relative path contains substring.
func (r *SQLiteRepository) FindImagesByPath(substring string) ([]models.Image, error) {
	var images []models.Image
	result := r.store.DB.Where("path LIKE ?", "%"+substring+"%").
		Order("path ASC, id ASC").Find(&images)
	if result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

// Matchings

func (r *SQLiteRepository) CreateMatching(matching *models.Matching) error {
	return r.store.DB.Create(matching).Error
}

func (r *SQLiteRepository) GetMatchingByID(id uint) (*models.Matching, error) {
	var matching models.Matching
	result := r.store.DB.First(&matching, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &matching, nil
}

func (r *SQLiteRepository) ListMatchings(projectID uint) ([]models.Matching, error) {
	var matchings []models.Matching
	result := r.store.DB.Where("project_id = ?", projectID).Order("id ASC").Find(&matchings)
	if result.Error != nil {
		return nil, result.Error
	}
	return matchings, nil
}

// CreateMatchingScores inserts one source row's score batch in a single
// transaction.
func (r *SQLiteRepository) CreateMatchingScores(scores []models.MatchingScore) error {
	if len(scores) == 0 {
		return nil
	}
	return r.store.DB.CreateInBatches(scores, r.batchSize).Error
}

// NearestNeighbors returns a page of a source image's targets ordered by
// rank ascending.
func (r *SQLiteRepository) NearestNeighbors(matchingID, sourceImageID uint, limit, offset int) ([]models.MatchingScore, int64, error) {
	query := r.store.DB.Model(&models.MatchingScore{}).
		Where("matching_id = ? AND source_image_id = ?", matchingID, sourceImageID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var scores []models.MatchingScore
	result := query.Order("rank ASC, target_image_id ASC").Limit(limit).Offset(offset).Find(&scores)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return scores, total, nil
}

// Assemblings

func (r *SQLiteRepository) CreateAssembling(assembling *models.Assembling) error {
	return r.store.DB.Create(assembling).Error
}

func (r *SQLiteRepository) GetAssemblingByID(id uint) (*models.Assembling, error) {
	var assembling models.Assembling
	result := r.store.DB.First(&assembling, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &assembling, nil
}

func (r *SQLiteRepository) ListAssemblings(projectID uint) ([]models.Assembling, error) {
	var assemblings []models.Assembling
	result := r.store.DB.Where("project_id = ?", projectID).Order("id ASC").Find(&assemblings)
	if result.Error != nil {
		return nil, result.Error
	}
	return assemblings, nil
}

// ActivateAssembling marks one assembling as activated and clears the flag
// on every other assembling of the project, in one transaction.
func (r *SQLiteRepository) ActivateAssembling(projectID, id uint) error {
	return r.store.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Assembling{}).
			Where("project_id = ? AND id != ?", projectID, id).
			Update("activated", false).Error; err != nil {
			return err
		}
		result := tx.Model(&models.Assembling{}).
			Where("project_id = ? AND id = ?", projectID, id).
			Update("activated", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("assembling %d not found in project %d", id, projectID)
		}
		return nil
	})
}

// AddAssemblingImage places an image on an assembling. Transforms defaults
// and validation are applied here, at the store boundary.
func (r *SQLiteRepository) AddAssemblingImage(assemblingID, imageID uint, transforms models.Transforms) (*models.AssemblingImage, error) {
	data, err := models.MarshalTransforms(transforms)
	if err != nil {
		return nil, err
	}
	record := &models.AssemblingImage{
		AssemblingID: assemblingID,
		ImageID:      imageID,
		Transforms:   data,
	}
	err = r.store.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Model(&models.Assembling{}).Where("id = ?", assemblingID).
			Update("image_count", gorm.Expr("image_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *SQLiteRepository) UpdateAssemblingImage(assemblingID, imageID uint, transforms models.Transforms) error {
	data, err := models.MarshalTransforms(transforms)
	if err != nil {
		return err
	}
	result := r.store.DB.Model(&models.AssemblingImage{}).
		Where("assembling_id = ? AND image_id = ?", assemblingID, imageID).
		Update("transforms", data)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("image %d is not placed on assembling %d", imageID, assemblingID)
	}
	return nil
}

func (r *SQLiteRepository) RemoveAssemblingImage(assemblingID, imageID uint) error {
	return r.store.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("assembling_id = ? AND image_id = ?", assemblingID, imageID).
			Delete(&models.AssemblingImage{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("image %d is not placed on assembling %d", imageID, assemblingID)
		}
		return tx.Model(&models.Assembling{}).Where("id = ?", assemblingID).
			Update("image_count", gorm.Expr("image_count - 1")).Error
	})
}

func (r *SQLiteRepository) ListAssemblingImages(assemblingID uint) ([]models.AssemblingImage, error) {
	var images []models.AssemblingImage
	result := r.store.DB.Where("assembling_id = ?", assemblingID).Order("id ASC").Find(&images)
	if result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

// UserConfig

// UpsertUserConfig stores a key/value pair, replacing any earlier value.
func (r *SQLiteRepository) UpsertUserConfig(key, value string) error {
	return r.store.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.UserConfig
		err := tx.Where("key = ?", key).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.UserConfig{Key: key, Value: value}).Error
		}
		if err != nil {
			return err
		}
		existing.Value = value
		return tx.Save(&existing).Error
	})
}

// GetUserConfig returns the stored value for key, or "" when unset.
func (r *SQLiteRepository) GetUserConfig(key string) (string, error) {
	var config models.UserConfig
	result := r.store.DB.Where("key = ?", key).First(&config)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return config.Value, nil
}
