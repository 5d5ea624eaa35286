package matching

import (
	"fmt"
	"sort"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
)

// ImageFinder is the store lookup the resolver needs: every image of the
// project whose name/path contains the given substring.
type ImageFinder interface {
	FindImagesByName(substring string) ([]models.Image, error)
	FindImagesByPath(substring string) ([]models.Image, error)
}

// Resolver maps free-text matrix labels to image records. The resolution
// cache is local to one matching job; a label resolved (or determined
// unresolved) once is never looked up again.
type Resolver struct {
	finder ImageFinder
	method models.MatchingMethod
	cache  map[string]*models.Image
}

// NewResolver creates a resolver for one matching job.
func NewResolver(finder ImageFinder, method models.MatchingMethod) *Resolver {
	return &Resolver{
		finder: finder,
		method: method,
		cache:  make(map[string]*models.Image),
	}
}

// Resolve returns the best-matching image for label, or nil when no image
// matches. Candidates are ordered by name (path for MatchByPath), then id,
// and the first one wins; the tie-break is deliberate and deterministic.
// A non-nil error means the store lookup itself failed.
func (r *Resolver) Resolve(label string) (*models.Image, error) {
	if cached, ok := r.cache[label]; ok {
		return cached, nil
	}

	var (
		candidates []models.Image
		err        error
	)
	switch r.method {
	case models.MatchByPath:
		candidates, err = r.finder.FindImagesByPath(label)
	case models.MatchByName:
		candidates, err = r.finder.FindImagesByName(label)
	default:
		return nil, fmt.Errorf("unknown matching method: %s", r.method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up label %q: %w", label, err)
	}

	if len(candidates) == 0 {
		r.cache[label] = nil
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		ka, kb := a.Name, b.Name
		if r.method == models.MatchByPath {
			ka, kb = a.Path, b.Path
		}
		if ka != kb {
			return ka < kb
		}
		return a.ID < b.ID
	})

	resolved := candidates[0]
	r.cache[label] = &resolved
	return &resolved, nil
}
