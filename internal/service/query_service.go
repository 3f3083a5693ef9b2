package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/ai"
	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	"github.com/rstamps01/rag-app-sub001/internal/monitor"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
	"github.com/rstamps01/rag-app-sub001/internal/resource"
	"github.com/rstamps01/rag-app-sub001/internal/vectorindex"
)

const (
	noContextAnswer = "I could not find any relevant information in the available documents to answer your question."
	degradedAnswer  = "The answer could not be generated right now. The passages below were retrieved for your question; please try again shortly."

	answerDelimiter = "ANSWER:"
	snippetMaxChars = 240
	maxQueryChars   = 2000
)

type QueryRequest struct {
	Query      string
	Department string
}

// QueryStore is the slice of the query repository the query pipeline needs.
type QueryStore interface {
	Create(ctx context.Context, rec *model.QueryRecord) error
	Get(ctx context.Context, id string) (*model.QueryRecord, error)
	List(ctx context.Context, department string, limit, offset int) ([]model.QueryRecord, error)
}

type QueryService struct {
	cfg          config.PipelineConfig
	decoding     config.DecodingConfig
	embedWait    time.Duration
	generateWait time.Duration
	searchWait   time.Duration
	queryRepo    QueryStore
	res          *resource.Manager
	index        vectorindex.Index
	mon          *monitor.Monitor
}

func NewQueryService(cfg config.PipelineConfig, decoding config.DecodingConfig,
	embedTimeout, generateTimeout, searchTimeout time.Duration,
	queryRepo QueryStore, res *resource.Manager, index vectorindex.Index,
	mon *monitor.Monitor) *QueryService {
	return &QueryService{
		cfg:          cfg,
		decoding:     decoding,
		embedWait:    embedTimeout,
		generateWait: generateTimeout,
		searchWait:   searchTimeout,
		queryRepo:    queryRepo,
		res:          res,
		index:        index,
		mon:          mon,
	}
}

// Answer runs the full query pipeline and persists the resulting record.
// Retrieval failures abort the request; a generation failure after successful
// retrieval degrades the answer but keeps the sources, so the caller still
// gets the evidence even when the model does not cooperate.
func (s *QueryService) Answer(ctx context.Context, req *QueryRequest) (*model.QueryRecord, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrValidation)
	}
	if len(query) > maxQueryChars {
		return nil, fmt.Errorf("%w: query exceeds %d characters", appErr.ErrValidation, maxQueryChars)
	}
	department, known := model.NormalizeDepartment(req.Department)
	if !known {
		logutil.GetLogger(ctx).Warn("unknown department, using default",
			zap.String("department", req.Department))
	}

	queryID := newQueryID()
	started := time.Now()

	vector, err := s.embedQuery(ctx, queryID, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.search(ctx, queryID, vector, department)
	if err != nil {
		return nil, err
	}

	rec := &model.QueryRecord{
		ID:         queryID,
		Query:      query,
		Department: department,
		Model:      s.res.GenerationModelName(),
		GPU:        s.res.Hardware(ctx).Accelerated(),
		Ctime:      started.UnixMilli(),
	}

	if len(matches) == 0 {
		// Nothing retrieved: answer from documents only means refusing
		// here, not letting the model improvise.
		rec.Answer = noContextAnswer
	} else {
		kept := s.assemble(ctx, queryID, matches)
		rec.Sources = buildSources(kept)
		answer, err := s.generate(ctx, queryID, query, kept)
		switch {
		case err == nil:
			rec.Answer = answer
		case errors.Is(err, appErr.ErrGenerationDegraded):
			logutil.GetLogger(ctx).Warn("generation failed, degrading",
				zap.String("query_id", queryID), zap.Error(err))
			rec.Answer = degradedAnswer
			rec.Degraded = true
		default:
			return nil, err
		}
	}

	rec.DurationMs = time.Since(started).Milliseconds()
	s.respond(ctx, rec)
	return rec, nil
}

func (s *QueryService) embedQuery(ctx context.Context, queryID, query string) ([]float32, error) {
	run := monitor.Begin(ctx, s.mon, queryID, model.StageQueryEmbed)
	vector, err := s.doEmbedQuery(ctx, query)
	if err != nil {
		run.Fail(ctx, err, nil)
		return nil, err
	}
	run.Succeed(ctx, nil)
	return vector, nil
}

func (s *QueryService) doEmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embedder, err := s.res.EmbeddingModel(ctx)
	if err != nil {
		return nil, err
	}
	embedCtx, cancel := context.WithTimeout(ctx, s.embedWait)
	defer cancel()
	vectors, err := embedder.EmbedBatch(embedCtx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbedderUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", appErr.ErrInternal, len(vectors))
	}
	if len(vectors[0]) != s.res.EmbedDimension() {
		return nil, fmt.Errorf("%w: embedding dimension %d, expected %d",
			appErr.ErrConfiguration, len(vectors[0]), s.res.EmbedDimension())
	}
	return vectors[0], nil
}

func (s *QueryService) search(ctx context.Context, queryID string, vector []float32, department model.Department) ([]vectorindex.Match, error) {
	run := monitor.Begin(ctx, s.mon, queryID, model.StageSearch)
	searchCtx, cancel := context.WithTimeout(ctx, s.searchWait)
	defer cancel()
	matches, err := s.index.Search(searchCtx, vector, department, s.cfg.TopK)
	if err != nil {
		run.Fail(ctx, err, nil)
		return nil, fmt.Errorf("index search: %w", err)
	}
	run.Succeed(ctx, map[string]interface{}{"matches": len(matches), "department": string(department)})
	return matches, nil
}

// assemble keeps as many top-ranked chunks as fit the context budget. Chunks
// are kept or dropped whole; a truncated chunk can invert its meaning.
func (s *QueryService) assemble(ctx context.Context, queryID string, matches []vectorindex.Match) []vectorindex.Match {
	run := monitor.Begin(ctx, s.mon, queryID, model.StageAssemble)
	budget := s.cfg.ContextBudgetChars
	used := 0
	kept := make([]vectorindex.Match, 0, len(matches))
	for _, match := range matches {
		cost := len(match.Text)
		if len(kept) > 0 && used+cost > budget {
			break
		}
		kept = append(kept, match)
		used += cost
	}
	run.Succeed(ctx, map[string]interface{}{"kept": len(kept), "dropped": len(matches) - len(kept), "chars": used})
	return kept
}

func (s *QueryService) generate(ctx context.Context, queryID, query string, matches []vectorindex.Match) (string, error) {
	run := monitor.Begin(ctx, s.mon, queryID, model.StageGenerate)
	answer, err := s.doGenerate(ctx, query, matches)
	if err != nil {
		// Overload and caller cancellation keep their own identity; every
		// other failure is tagged degradable so the caller serves the
		// fallback answer instead of failing the request.
		if !errors.Is(err, appErr.ErrTooMany) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", appErr.ErrGenerationDegraded, err)
		}
		run.Fail(ctx, err, nil)
		return "", err
	}
	run.Succeed(ctx, map[string]interface{}{"answer_chars": len(answer)})
	return answer, nil
}

func (s *QueryService) doGenerate(ctx context.Context, query string, matches []vectorindex.Match) (string, error) {
	generator, err := s.res.GenerationModel(ctx)
	if err != nil {
		return "", err
	}
	release, err := s.res.AcquireGenerationSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	genCtx, cancel := context.WithTimeout(ctx, s.generateWait)
	defer cancel()
	raw, err := generator.Generate(genCtx, buildPrompt(query, matches), ai.GenerateOptions{
		Temperature:   s.decoding.Temperature,
		TopP:          s.decoding.TopP,
		RepeatPenalty: s.decoding.RepeatPenalty,
		MaxNewTokens:  s.decoding.MaxNewTokens,
	})
	if err != nil {
		return "", err
	}
	answer := extractAnswer(raw)
	if answer == "" {
		return "", fmt.Errorf("model returned empty answer")
	}
	return answer, nil
}

func (s *QueryService) respond(ctx context.Context, rec *model.QueryRecord) {
	run := monitor.Begin(ctx, s.mon, rec.ID, model.StageRespond)
	if err := s.queryRepo.Create(ctx, rec); err != nil {
		run.Fail(ctx, err, nil)
		logutil.GetLogger(ctx).Error("persist query record failed",
			zap.String("query_id", rec.ID), zap.Error(err))
		return
	}
	run.Succeed(ctx, map[string]interface{}{"degraded": rec.Degraded, "sources": len(rec.Sources)})
}

func buildPrompt(query string, matches []vectorindex.Match) string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions using only the context passages below.\n")
	b.WriteString("If the context does not contain the answer, reply exactly: I don't know.\n")
	b.WriteString("Do not use any knowledge outside the context.\n\nContext:\n")
	for i, match := range matches {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, match.SourceFilename, match.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(answerDelimiter)
	b.WriteString("\n")
	return b.String()
}

// extractAnswer strips any echoed prompt. Some models repeat the input before
// answering; everything after the final delimiter is the answer.
func extractAnswer(raw string) string {
	if idx := strings.LastIndex(raw, answerDelimiter); idx >= 0 {
		raw = raw[idx+len(answerDelimiter):]
	}
	return strings.TrimSpace(raw)
}

func buildSources(matches []vectorindex.Match) []model.QuerySource {
	sources := make([]model.QuerySource, 0, len(matches))
	for _, match := range matches {
		sources = append(sources, model.QuerySource{
			DocumentID: match.DocumentID,
			Filename:   match.SourceFilename,
			Score:      match.Score,
			Snippet:    snippet(match.Text),
			ChunkIndex: match.ChunkIndex,
		})
	}
	return sources
}

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetMaxChars {
		return string(runes)
	}
	return string(runes[:snippetMaxChars]) + "..."
}

func (s *QueryService) GetQuery(ctx context.Context, id string) (*model.QueryRecord, error) {
	return s.queryRepo.Get(ctx, id)
}

func (s *QueryService) ListQueries(ctx context.Context, department string, limit, offset int) ([]model.QueryRecord, error) {
	if department != "" {
		dep, _ := model.NormalizeDepartment(department)
		department = string(dep)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryRepo.List(ctx, department, limit, offset)
}
