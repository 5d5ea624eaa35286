package repository

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/db"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	store, err := db.NewManager().Open(filepath.Join(t.TempDir(), "project"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return New(store, 10)
}

func seedProject(t *testing.T, repo *SQLiteRepository) *models.Project {
	t.Helper()
	project := &models.Project{Path: "/tmp/p", Name: "test", DataPath: "/tmp/d"}
	if err := repo.CreateProject(project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func seedCategory(t *testing.T, repo *SQLiteRepository, projectID uint, name string) *models.Category {
	t.Helper()
	category := &models.Category{ProjectID: projectID, Name: name, Path: "/tmp/d/" + name}
	if err := repo.CreateCategory(category); err != nil {
		t.Fatalf("create category: %v", err)
	}
	return category
}

func TestGetProject_NilWhenEmpty(t *testing.T) {
	repo := newTestRepository(t)

	project, err := repo.GetProject()
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if project != nil {
		t.Fatalf("expected nil, got %+v", project)
	}
}

func TestCreateProject_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	created := seedProject(t, repo)

	loaded, err := repo.GetProject()
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if loaded == nil || loaded.ID != created.ID || loaded.Name != "test" {
		t.Fatalf("unexpected project: %+v", loaded)
	}
}

func TestCreateImages_BatchesLargeSets(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)
	category := seedCategory(t, repo, project.ID, "alpha")

	// More images than the batch size of 10.
	images := make([]models.Image, 25)
	for i := range images {
		images[i] = models.Image{
			CategoryID: category.ID,
			Path:       fmt.Sprintf("img-%03d.jpg", i),
			Name:       fmt.Sprintf("img-%03d.jpg", i),
			Thumbnail:  fmt.Sprintf("thumbnails/%d.jpg", i),
		}
	}
	if err := repo.CreateImages(images); err != nil {
		t.Fatalf("CreateImages: %v", err)
	}

	listed, total, err := repo.ListImages(category.ID, "", 100, 0)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if total != 25 || len(listed) != 25 {
		t.Fatalf("expected 25 images, got total=%d len=%d", total, len(listed))
	}
}

func TestCreateImages_EmptySliceIsNoop(t *testing.T) {
	repo := newTestRepository(t)
	if err := repo.CreateImages(nil); err != nil {
		t.Fatalf("CreateImages(nil): %v", err)
	}
}

func TestListImages_FilterPaginationAndOrder(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)
	alpha := seedCategory(t, repo, project.ID, "alpha")
	beta := seedCategory(t, repo, project.ID, "beta")

	images := []models.Image{
		{CategoryID: alpha.ID, Path: "c.jpg", Name: "c.jpg"},
		{CategoryID: alpha.ID, Path: "a.jpg", Name: "a.jpg"},
		{CategoryID: alpha.ID, Path: "b.jpg", Name: "b.jpg"},
		{CategoryID: beta.ID, Path: "a-beta.jpg", Name: "a-beta.jpg"},
	}
	if err := repo.CreateImages(images); err != nil {
		t.Fatalf("CreateImages: %v", err)
	}

	// Category scoping plus name ordering.
	listed, total, err := repo.ListImages(alpha.ID, "", 2, 0)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if total != 3 || len(listed) != 2 {
		t.Fatalf("expected total=3 page of 2, got total=%d len=%d", total, len(listed))
	}
	if listed[0].Name != "a.jpg" || listed[1].Name != "b.jpg" {
		t.Fatalf("unexpected order: %s, %s", listed[0].Name, listed[1].Name)
	}

	// Second page.
	listed, _, err = repo.ListImages(alpha.ID, "", 2, 2)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "c.jpg" {
		t.Fatalf("unexpected second page: %+v", listed)
	}

	// Category 0 means all categories; filter is a substring match.
	listed, total, err = repo.ListImages(0, "beta", 10, 0)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if total != 1 || listed[0].Name != "a-beta.jpg" {
		t.Fatalf("unexpected filtered result: total=%d %+v", total, listed)
	}
}

func TestFindImagesByName_SubstringMatch(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)
	category := seedCategory(t, repo, project.ID, "alpha")

	images := []models.Image{
		{CategoryID: category.ID, Path: "x/papyrus-10.jpg", Name: "papyrus-10.jpg"},
		{CategoryID: category.ID, Path: "x/papyrus-1.jpg", Name: "papyrus-1.jpg"},
		{CategoryID: category.ID, Path: "x/other.jpg", Name: "other.jpg"},
	}
	if err := repo.CreateImages(images); err != nil {
		t.Fatalf("CreateImages: %v", err)
	}

	found, err := repo.FindImagesByName("papyrus-1")
	if err != nil {
		t.Fatalf("FindImagesByName: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if found[0].Name != "papyrus-1.jpg" {
		t.Fatalf("expected name order, got %s first", found[0].Name)
	}

	byPath, err := repo.FindImagesByPath("x/other")
	if err != nil {
		t.Fatalf("FindImagesByPath: %v", err)
	}
	if len(byPath) != 1 || byPath[0].Name != "other.jpg" {
		t.Fatalf("unexpected path match: %+v", byPath)
	}
}

func TestNearestNeighbors_OrderedByRank(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)

	matching := &models.Matching{ProjectID: project.ID, Name: "vgg16", File: "m.csv",
		Method: models.MatchByName, Type: models.MatchingDistance}
	if err := repo.CreateMatching(matching); err != nil {
		t.Fatalf("CreateMatching: %v", err)
	}

	scores := []models.MatchingScore{
		{MatchingID: matching.ID, SourceImageID: 1, TargetImageID: 3, Score: 0.5, Rank: 2},
		{MatchingID: matching.ID, SourceImageID: 1, TargetImageID: 2, Score: 1.0, Rank: 1},
		{MatchingID: matching.ID, SourceImageID: 1, TargetImageID: 4, Score: 0.25, Rank: 3},
		{MatchingID: matching.ID, SourceImageID: 2, TargetImageID: 1, Score: 1.0, Rank: 1},
	}
	if err := repo.CreateMatchingScores(scores); err != nil {
		t.Fatalf("CreateMatchingScores: %v", err)
	}

	neighbors, total, err := repo.NearestNeighbors(matching.ID, 1, 2, 0)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 neighbors for source 1, got %d", total)
	}
	if neighbors[0].TargetImageID != 2 || neighbors[1].TargetImageID != 3 {
		t.Fatalf("unexpected order: %+v", neighbors)
	}

	// Second page.
	neighbors, _, err = repo.NearestNeighbors(matching.ID, 1, 2, 2)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].TargetImageID != 4 {
		t.Fatalf("unexpected second page: %+v", neighbors)
	}
}

func TestGetMatchingByID_NilWhenMissing(t *testing.T) {
	repo := newTestRepository(t)

	matching, err := repo.GetMatchingByID(42)
	if err != nil {
		t.Fatalf("GetMatchingByID: %v", err)
	}
	if matching != nil {
		t.Fatalf("expected nil, got %+v", matching)
	}
}

func TestActivateAssembling_SingleActive(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)

	first := &models.Assembling{ProjectID: project.ID, Name: "first"}
	second := &models.Assembling{ProjectID: project.ID, Name: "second"}
	for _, a := range []*models.Assembling{first, second} {
		if err := repo.CreateAssembling(a); err != nil {
			t.Fatalf("CreateAssembling: %v", err)
		}
	}

	if err := repo.ActivateAssembling(project.ID, first.ID); err != nil {
		t.Fatalf("ActivateAssembling: %v", err)
	}
	if err := repo.ActivateAssembling(project.ID, second.ID); err != nil {
		t.Fatalf("ActivateAssembling: %v", err)
	}

	assemblings, err := repo.ListAssemblings(project.ID)
	if err != nil {
		t.Fatalf("ListAssemblings: %v", err)
	}
	activeCount := 0
	for _, a := range assemblings {
		if a.Activated {
			activeCount++
			if a.ID != second.ID {
				t.Fatalf("expected assembling %d active, got %d", second.ID, a.ID)
			}
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active assembling, got %d", activeCount)
	}
}

func TestActivateAssembling_MissingIDFails(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)

	if err := repo.ActivateAssembling(project.ID, 99); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestAssemblingImages_PlaceUpdateRemove(t *testing.T) {
	repo := newTestRepository(t)
	project := seedProject(t, repo)

	assembling := &models.Assembling{ProjectID: project.ID, Name: "canvas"}
	if err := repo.CreateAssembling(assembling); err != nil {
		t.Fatalf("CreateAssembling: %v", err)
	}

	placed, err := repo.AddAssemblingImage(assembling.ID, 7, models.Transforms{Top: 10, Left: 20})
	if err != nil {
		t.Fatalf("AddAssemblingImage: %v", err)
	}
	transforms, err := models.UnmarshalTransforms(placed.Transforms)
	if err != nil {
		t.Fatalf("UnmarshalTransforms: %v", err)
	}
	if transforms.Scale != 1 {
		t.Fatalf("expected default scale 1, got %v", transforms.Scale)
	}

	loaded, err := repo.GetAssemblingByID(assembling.ID)
	if err != nil {
		t.Fatalf("GetAssemblingByID: %v", err)
	}
	if loaded.ImageCount != 1 {
		t.Fatalf("expected image count 1, got %d", loaded.ImageCount)
	}

	if err := repo.UpdateAssemblingImage(assembling.ID, 7, models.Transforms{Top: 5, Scale: 2}); err != nil {
		t.Fatalf("UpdateAssemblingImage: %v", err)
	}
	entries, err := repo.ListAssemblingImages(assembling.ID)
	if err != nil {
		t.Fatalf("ListAssemblingImages: %v", err)
	}
	transforms, err = models.UnmarshalTransforms(entries[0].Transforms)
	if err != nil {
		t.Fatalf("UnmarshalTransforms: %v", err)
	}
	if transforms.Top != 5 || transforms.Scale != 2 {
		t.Fatalf("unexpected transforms: %+v", transforms)
	}

	if err := repo.RemoveAssemblingImage(assembling.ID, 7); err != nil {
		t.Fatalf("RemoveAssemblingImage: %v", err)
	}
	loaded, err = repo.GetAssemblingByID(assembling.ID)
	if err != nil {
		t.Fatalf("GetAssemblingByID: %v", err)
	}
	if loaded.ImageCount != 0 {
		t.Fatalf("expected image count 0, got %d", loaded.ImageCount)
	}
}

func TestAddAssemblingImage_RejectsInvalidScale(t *testing.T) {
	repo := newTestRepository(t)
	if _, err := repo.AddAssemblingImage(1, 1, models.Transforms{Scale: -1}); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestUserConfig_UpsertAndDefault(t *testing.T) {
	repo := newTestRepository(t)

	value, err := repo.GetUserConfig("missing")
	if err != nil {
		t.Fatalf("GetUserConfig: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value, got %q", value)
	}

	if err := repo.UpsertUserConfig(models.ConfigActivatedMatching, "1"); err != nil {
		t.Fatalf("UpsertUserConfig: %v", err)
	}
	if err := repo.UpsertUserConfig(models.ConfigActivatedMatching, "2"); err != nil {
		t.Fatalf("UpsertUserConfig: %v", err)
	}

	value, err = repo.GetUserConfig(models.ConfigActivatedMatching)
	if err != nil {
		t.Fatalf("GetUserConfig: %v", err)
	}
	if value != "2" {
		t.Fatalf("expected last write to win, got %q", value)
	}
}
