package matching

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/models"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"

	log "github.com/sirupsen/logrus"
)

// Store is the slice of the project repository the engine writes through.
type Store interface {
	ImageFinder
	GetProject() (*models.Project, error)
	CreateMatching(matching *models.Matching) error
	CreateMatchingScores(scores []models.MatchingScore) error
	UpsertUserConfig(key, value string) error
}

// Request describes one matching ingestion job.
type Request struct {
	Name   string
	File   string
	Type   models.MatchingType
	Method models.MatchingMethod
}

// Result is the outcome of a completed ingestion.
type Result struct {
	MatchingID uint
	Unresolved []string
}

// Engine streams a similarity/distance matrix into ranked matching scores.
type Engine struct {
	store Store
}

// NewEngine creates an engine over one project's store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// NormalizeScore maps a raw matrix value onto the common "higher = more
// similar" scale. Distances d >= 0 map to 1/(1+d), which is strictly
// decreasing in d and bounded in (0, 1]; similarities pass through.
func NormalizeScore(matchingType models.MatchingType, raw float64) float64 {
	if matchingType == models.MatchingDistance {
		return 1 / (1 + raw)
	}
	return raw
}

type scoredTarget struct {
	imageID uint
	score   float64
}

// rankScores sorts targets by descending score and assigns 1-based dense
// ranks: tied scores share a rank, the next distinct score's rank is exactly
// one greater. Ties are ordered by image id so output is deterministic.
func rankScores(targets []scoredTarget) []models.MatchingScore {
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].score != targets[j].score {
			return targets[i].score > targets[j].score
		}
		return targets[i].imageID < targets[j].imageID
	})

	scores := make([]models.MatchingScore, 0, len(targets))
	rank := 0
	prev := 0.0
	for i, t := range targets {
		if i == 0 || t.score < prev {
			rank++
			prev = t.score
		}
		scores = append(scores, models.MatchingScore{
			TargetImageID: t.imageID,
			Score:         t.score,
			Rank:          rank,
		})
	}
	return scores
}

// countRows counts the data rows of the matrix so progress can be reported
// against a fixed denominator.
func countRows(file string) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil { // header
		if err == io.EOF {
			return 0, nil
		}
		return 0, err
	}
	rows := 0
	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return rows, nil
			}
			return 0, err
		}
		rows++
	}
}

// Ingest runs one matching job. Unresolved labels are soft failures: they
// are reported as warnings, collected into the result, and never abort the
// job. Distinct labels that resolve onto the same image keep only the first
// occurrence, again with a warning, so every (source, target) pair is
// written at most once. Only I/O or store failures are fatal; rows already
// flushed stay.
func (e *Engine) Ingest(ctx context.Context, req Request, sink progress.Sink) (*Result, error) {
	reporter := progress.NewReporter(sink)

	fail := func(err error) (*Result, error) {
		reporter.Fail(err.Error())
		return nil, err
	}

	project, err := e.store.GetProject()
	if err != nil {
		return fail(fmt.Errorf("failed to load project: %w", err))
	}
	if project == nil {
		return fail(fmt.Errorf("project store is not initialized"))
	}

	totalRows, err := countRows(req.File)
	if err != nil {
		return fail(fmt.Errorf("failed to read matrix file: %w", err))
	}

	matching := &models.Matching{
		ProjectID: project.ID,
		Name:      req.Name,
		File:      req.File,
		Method:    req.Method,
		Type:      req.Type,
	}
	if err := e.store.CreateMatching(matching); err != nil {
		return fail(fmt.Errorf("failed to create matching record: %w", err))
	}
	log.Infof("Created matching %d (%s) from %s", matching.ID, matching.Name, matching.File)

	f, err := os.Open(req.File)
	if err != nil {
		return fail(fmt.Errorf("failed to open matrix file: %w", err))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows; cells are guarded per column
	header, err := reader.Read()
	if err != nil {
		return fail(fmt.Errorf("failed to read matrix header: %w", err))
	}

	resolver := NewResolver(e.store, req.Method)
	var unresolved []string
	seenUnresolved := make(map[string]bool)
	noteUnresolved := func(label string) {
		if !seenUnresolved[label] {
			seenUnresolved[label] = true
			unresolved = append(unresolved, label)
		}
		reporter.Warn(fmt.Sprintf("could not resolve label %q to any image", label))
	}

	rowsProcessed := 0
	seenSources := make(map[uint]bool)
	for {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("matching ingestion cancelled: %w", err))
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("failed to read matrix row: %w", err))
		}

		sourceLabel := record[0]
		source, err := resolver.Resolve(sourceLabel)
		if err != nil {
			return fail(err)
		}
		switch {
		case source == nil:
			noteUnresolved(sourceLabel)
		case seenSources[source.ID]:
			// Fuzzy resolution can collapse two row labels onto one image;
			// a second batch for the same source would collide with the
			// pair uniqueness index.
			reporter.Warn(fmt.Sprintf("row %q resolves to an image that already has scores; skipping row", sourceLabel))
		default:
			seenSources[source.ID] = true
			var targets []scoredTarget
			seenTargets := make(map[uint]bool)
			for col := 1; col < len(record) && col < len(header); col++ {
				raw, err := strconv.ParseFloat(record[col], 64)
				if err != nil {
					reporter.Warn(fmt.Sprintf("non-numeric value %q for label %q in row %q",
						record[col], header[col], sourceLabel))
					continue
				}
				target, err := resolver.Resolve(header[col])
				if err != nil {
					return fail(err)
				}
				if target == nil {
					noteUnresolved(header[col])
					continue
				}
				if seenTargets[target.ID] {
					reporter.Warn(fmt.Sprintf("label %q resolves to an image already scored in this row; keeping the first occurrence", header[col]))
					continue
				}
				seenTargets[target.ID] = true
				targets = append(targets, scoredTarget{
					imageID: target.ID,
					score:   NormalizeScore(req.Type, raw),
				})
			}

			scores := rankScores(targets)
			for i := range scores {
				scores[i].MatchingID = matching.ID
				scores[i].SourceImageID = source.ID
			}
			if err := e.store.CreateMatchingScores(scores); err != nil {
				return fail(fmt.Errorf("failed to persist matching scores: %w", err))
			}
		}

		rowsProcessed++
		reporter.Report(float64(rowsProcessed)/float64(totalRows)*100,
			"Matching images", fmt.Sprintf("Processed row %q", sourceLabel))
	}

	if err := e.store.UpsertUserConfig(models.ConfigActivatedMatching,
		strconv.FormatUint(uint64(matching.ID), 10)); err != nil {
		return fail(fmt.Errorf("failed to activate matching: %w", err))
	}

	reporter.Report(100, "Matching images", "All rows processed")
	reporter.Complete(fmt.Sprintf("Matching %q created", req.Name))
	log.Infof("Matching %d completed: %d rows, %d unresolved labels",
		matching.ID, rowsProcessed, len(unresolved))

	return &Result{MatchingID: matching.ID, Unresolved: unresolved}, nil
}
