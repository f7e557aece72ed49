package reuse

import (
	"context"
	"errors"
	"fmt"

	"github.com/RishiKendai/palimpsest/internal/corpus"
	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidRequest is returned for an empty target or a window smaller than one word
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrInputUnavailable wraps failures to load the metadata feed or the corpus
	ErrInputUnavailable = errors.New("run input unavailable")
	// ErrPoolClosed is returned when the match worker pool stops during a run
	ErrPoolClosed = errors.New("match worker pool closed")
)

// Inputs supplies the metadata feed and the raw corpus of a run
type Inputs interface {
	LoadMetadata(ctx context.Context) ([]models.RawMetadataRecord, error)
	LoadCorpus(ctx context.Context) ([]byte, error)
}

// RunStats counts what a run went through
type RunStats struct {
	Lines            int
	SkippedRecords   int
	UnknownDocuments int
	Documents        int
	IndexedShingles  int
	ScannedShingles  int
	Connections      int
}

// Hooks observe a run while it executes. Every field is optional.
type Hooks struct {
	Progress ProgressFunc
	Step     func(step models.Step)
	Stats    func(stats RunStats)
}

func (h Hooks) step(s models.Step) {
	if h.Step != nil {
		h.Step(s)
	}
}

// Engine detects text reuse between a target document and the rest of a corpus.
// It keeps no state between runs.
type Engine struct {
	inputs Inputs
	pool   *WorkerPool
}

// NewEngine creates an engine. With a nil pool documents are matched sequentially.
func NewEngine(inputs Inputs, pool *WorkerPool) *Engine {
	return &Engine{
		inputs: inputs,
		pool:   pool,
	}
}

// ValidateRequest checks a run request
func ValidateRequest(req models.RunRequest) error {
	if req.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	if req.MinWords < 1 {
		return fmt.Errorf("%w: minWords must be at least 1", ErrInvalidRequest)
	}
	return nil
}

// run holds the state of a single execution
type run struct {
	req      models.RunRequest
	hooks    Hooks
	reporter *Reporter
	stats    RunStats

	meta        []models.RawMetadataRecord
	catalog     map[string]models.Document
	found       bool
	targetPages []models.Page
	sources     []sourceDocument
	positions   map[string]int
}

// Run executes one request to completion
func (e *Engine) Run(ctx context.Context, req models.RunRequest, hooks Hooks) (*models.RunResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	r := &run{
		req:       req,
		hooks:     hooks,
		reporter:  NewReporter(hooks.Progress),
		positions: make(map[string]int),
	}

	r.reporter.Report(ProgressStart)
	hooks.step(models.StepLoadingInputs)

	if err := e.loadInputs(ctx, r); err != nil {
		hooks.step(models.StepFailed)
		return nil, err
	}

	if !r.found {
		log.Info().
			Str("target", req.Target).
			Int("lines", r.stats.Lines).
			Msg("Target not found in corpus")
		r.finish(models.StepNotFound)
		return &models.RunResult{
			Target: models.TargetDescriptor{
				ID:       req.Target,
				Year:     0,
				Title:    models.NotFoundTitle,
				NotFound: true,
			},
			Connections: []models.Connection{},
			Meta:        r.meta,
		}, nil
	}

	hooks.step(models.StepBuildingIndex)
	idx := BuildIndex(r.targetPages, req.MinWords)
	r.stats.IndexedShingles = idx.Len()

	hooks.step(models.StepMatching)
	results, err := e.matchAll(ctx, r, idx)
	if err != nil {
		hooks.step(models.StepFailed)
		return nil, err
	}

	target := r.targetDescriptor()
	connections := make([]models.Connection, 0)
	for i, src := range r.sources {
		r.stats.ScannedShingles += results[i].Shingles
		if c, ok := Aggregate(target, src.Document, results[i].Matches); ok {
			connections = append(connections, c)
		}
	}
	r.stats.Connections = len(connections)

	log.Debug().
		Str("target", req.Target).
		Int("minWords", req.MinWords).
		Int("documents", len(r.sources)).
		Int("indexed", r.stats.IndexedShingles).
		Int("connections", len(connections)).
		Msg("Run completed")

	r.finish(models.StepDone)
	return &models.RunResult{
		Target:      target,
		Connections: connections,
		Meta:        r.meta,
	}, nil
}

func (e *Engine) loadInputs(ctx context.Context, r *run) error {
	meta, err := e.inputs.LoadMetadata(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	r.meta = meta
	if r.meta == nil {
		r.meta = []models.RawMetadataRecord{}
	}
	r.catalog = corpus.BuildCatalog(meta)
	r.reporter.Report(ProgressMetadata)

	data, err := e.inputs.LoadCorpus(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	r.reporter.Report(ProgressCorpus)

	lines := corpus.SplitLines(data)
	r.stats.Lines = len(lines)
	for i, line := range lines {
		r.addLine(line)
		r.reporter.Stage(ProgressCorpus, ProgressParsed, i+1, len(lines))
	}
	r.reporter.Report(ProgressParsed)
	r.stats.Documents = len(r.sources)
	return nil
}

// addLine routes one corpus line to the target pages or to a source document
func (r *run) addLine(line string) {
	record, ok := corpus.ParseRecord(line)
	if !ok {
		if line != "" {
			r.stats.SkippedRecords++
			log.Debug().Int("length", len(line)).Msg("Skipping malformed corpus record")
		}
		return
	}

	if record.DocumentID == r.req.Target {
		r.found = true
		r.targetPages = append(r.targetPages, record.Pages...)
		return
	}

	doc, ok := r.catalog[record.DocumentID]
	if !ok {
		r.stats.UnknownDocuments++
		log.Debug().Str("documentId", record.DocumentID).Msg("Skipping document without metadata")
		return
	}

	if pos, seen := r.positions[record.DocumentID]; seen {
		r.sources[pos].Pages = append(r.sources[pos].Pages, record.Pages...)
		return
	}
	r.positions[record.DocumentID] = len(r.sources)
	r.sources = append(r.sources, sourceDocument{Document: doc, Pages: record.Pages})
}

func (r *run) targetDescriptor() models.TargetDescriptor {
	doc := r.catalog[r.req.Target]
	return models.TargetDescriptor{
		ID:    r.req.Target,
		Year:  doc.Year,
		Title: doc.Title,
	}
}

func (r *run) finish(step models.Step) {
	r.hooks.step(step)
	if r.hooks.Stats != nil {
		r.hooks.Stats(r.stats)
	}
	r.reporter.Complete()
}

// matchAll matches every source document against idx. Results are indexed by source position.
func (e *Engine) matchAll(ctx context.Context, r *run, idx *TargetIndex) ([]documentMatches, error) {
	total := len(r.sources)
	results := make([]documentMatches, total)
	matchEnd := ProgressComplete - 1

	if e.pool == nil {
		for i, src := range r.sources {
			matches, scanned := MatchPages(idx, src.Pages, r.req.MinWords)
			results[i] = documentMatches{Position: i, Shingles: scanned, Matches: matches}
			r.reporter.Stage(ProgressParsed, matchEnd, i+1, total)
		}
		return results, nil
	}

	resultChan := make(chan documentMatches, total)
	for i, src := range r.sources {
		job := &MatchJob{
			Index:      idx,
			Source:     src,
			MinWords:   r.req.MinWords,
			Position:   i,
			ResultChan: resultChan,
		}
		if err := e.pool.Submit(ctx, job); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("documentId", src.Document.ID).Msg("Failed to submit match job")
			return nil, ErrPoolClosed
		}
	}

	for done := 0; done < total; done++ {
		res, err := e.nextResult(ctx, resultChan)
		if err != nil {
			return nil, err
		}
		results[res.Position] = res
		r.reporter.Stage(ProgressParsed, matchEnd, done+1, total)
	}
	return results, nil
}

// nextResult prefers results already delivered over a closed pool or a done context
func (e *Engine) nextResult(ctx context.Context, resultChan <-chan documentMatches) (documentMatches, error) {
	select {
	case res := <-resultChan:
		return res, nil
	default:
	}

	select {
	case res := <-resultChan:
		return res, nil
	case <-ctx.Done():
		return documentMatches{}, ctx.Err()
	case <-e.pool.Done():
		return documentMatches{}, ErrPoolClosed
	}
}
