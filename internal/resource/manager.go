package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/ai"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

// ProviderModel pairs a provider with the model it serves, for fallback
// chains behind the primary.
type ProviderModel struct {
	Provider ai.IProvider
	Model    string
}

type ManagerConfig struct {
	EmbedProvider    ai.IProvider
	EmbedModel       string
	EmbedDimension   int
	EmbedFallbacks   []ProviderModel
	GenProvider      ai.IProvider
	GenModel         string
	GenFallbacks     []ProviderModel
	WrapEmbedder     func(ai.IEmbedder) ai.IEmbedder // cache decorators, applied once at load
	HardwareRunner   CommandRunner
	GenerationSlots  int
	QueueSize        int
	QueueWaitSeconds int
}

// Manager hands out ready-to-use model handles. Construction is cheap; the
// actual loads happen lazily, once per process, guarded so that concurrent
// first requests do not trigger duplicate loads.
type Manager struct {
	cfg ManagerConfig

	hwOnce sync.Once
	hw     Hardware

	mu       sync.Mutex
	embedder ai.IEmbedder
	embedErr error
	embedded bool

	generator ai.IGenerator
	genErr    error
	genLoaded bool

	limiter *Limiter
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		limiter: NewLimiter(cfg.GenerationSlots, cfg.QueueSize, cfg.QueueWaitSeconds),
	}
}

// Hardware runs the device/precision scan on first use and caches the result
// for the process lifetime.
func (m *Manager) Hardware(ctx context.Context) Hardware {
	m.hwOnce.Do(func() {
		m.hw = ProbeHardware(ctx, m.cfg.HardwareRunner)
		logutil.GetLogger(ctx).Info("hardware scan",
			zap.String("device", m.hw.Device),
			zap.String("precision", string(m.hw.Precision)),
			zap.Int("free_vram_mb", m.hw.FreeVRAMMB),
			zap.Int("embed_batch_size", m.hw.EmbedBatchSize),
		)
	})
	return m.hw
}

func (m *Manager) EmbedDimension() int {
	return m.cfg.EmbedDimension
}

// GenerationModelName is the identifier recorded on query records: the
// loaded generator's name, which for a fallback chain joins every member.
func (m *Manager) GenerationModelName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generator != nil {
		return m.generator.ModelName()
	}
	return m.cfg.GenModel
}

// EmbeddingModel loads the embedding model on first call and returns the
// cached handle afterwards. A load failure is remembered: retrying on every
// request would just hammer a dead backend.
func (m *Manager) EmbeddingModel(ctx context.Context) (ai.IEmbedder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedded {
		return m.embedder, m.embedErr
	}
	m.embedded = true
	if m.cfg.EmbedProvider == nil {
		m.embedErr = fmt.Errorf("%w: no embedding provider configured", appErr.ErrConfiguration)
		return nil, m.embedErr
	}
	if err := m.cfg.EmbedProvider.EnsureModel(ctx, m.cfg.EmbedModel); err != nil {
		m.embedErr = fmt.Errorf("%w: %v", appErr.ErrEmbedderUnavailable, err)
		return nil, m.embedErr
	}
	entries := []ai.EmbedderEntry{{
		Name:     m.cfg.EmbedModel,
		Embedder: ai.NewEmbedder(m.cfg.EmbedProvider, m.cfg.EmbedModel),
	}}
	entries = append(entries, m.readyEmbedFallbacks(ctx)...)
	embedder := entries[0].Embedder
	if len(entries) > 1 {
		embedder = ai.NewGroupEmbedder(entries)
	}
	if m.cfg.WrapEmbedder != nil {
		embedder = m.cfg.WrapEmbedder(embedder)
	}
	m.embedder = embedder
	logutil.GetLogger(ctx).Info("embedding model ready",
		zap.String("model", m.cfg.EmbedModel), zap.Int("fallbacks", len(entries)-1))
	return m.embedder, nil
}

// readyEmbedFallbacks ensures each configured fallback and drops the ones
// whose backend cannot serve. The primary alone is a valid outcome; only it
// is allowed to fail the load.
func (m *Manager) readyEmbedFallbacks(ctx context.Context) []ai.EmbedderEntry {
	var out []ai.EmbedderEntry
	for _, fb := range m.cfg.EmbedFallbacks {
		if fb.Provider == nil || fb.Model == "" {
			continue
		}
		if err := fb.Provider.EnsureModel(ctx, fb.Model); err != nil {
			logutil.GetLogger(ctx).Warn("fallback embedder not ready, skipping",
				zap.String("model", fb.Model), zap.Error(err))
			continue
		}
		out = append(out, ai.EmbedderEntry{Name: fb.Model, Embedder: ai.NewEmbedder(fb.Provider, fb.Model)})
	}
	return out
}

// GenerationModel loads the generation model with the tiered strategy (local
// cache, then hub pull) on first call. Callers treat a warmup failure as
// fatal at startup; at request time the query pipeline degrades instead.
func (m *Manager) GenerationModel(ctx context.Context) (ai.IGenerator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.genLoaded {
		return m.generator, m.genErr
	}
	m.genLoaded = true
	if m.cfg.GenProvider == nil {
		m.genErr = fmt.Errorf("%w: no generation provider configured", appErr.ErrConfiguration)
		return nil, m.genErr
	}
	if err := m.cfg.GenProvider.EnsureModel(ctx, m.cfg.GenModel); err != nil {
		m.genErr = fmt.Errorf("%w: %v", appErr.ErrGeneratorUnavailable, err)
		return nil, m.genErr
	}
	entries := []ai.GeneratorEntry{{
		Name:      m.cfg.GenModel,
		Generator: ai.NewGenerator(m.cfg.GenProvider, m.cfg.GenModel),
	}}
	entries = append(entries, m.readyGenFallbacks(ctx)...)
	m.generator = entries[0].Generator
	if len(entries) > 1 {
		m.generator = ai.NewGroupGenerator(entries)
	}
	logutil.GetLogger(ctx).Info("generation model ready",
		zap.String("model", m.cfg.GenModel), zap.Int("fallbacks", len(entries)-1))
	return m.generator, nil
}

func (m *Manager) readyGenFallbacks(ctx context.Context) []ai.GeneratorEntry {
	var out []ai.GeneratorEntry
	for _, fb := range m.cfg.GenFallbacks {
		if fb.Provider == nil || fb.Model == "" {
			continue
		}
		if err := fb.Provider.EnsureModel(ctx, fb.Model); err != nil {
			logutil.GetLogger(ctx).Warn("fallback generator not ready, skipping",
				zap.String("model", fb.Model), zap.Error(err))
			continue
		}
		out = append(out, ai.GeneratorEntry{Name: fb.Model, Generator: ai.NewGenerator(fb.Provider, fb.Model)})
	}
	return out
}

// Warmup loads both models eagerly. Run at startup so a missing model fails
// the process instead of the first request.
func (m *Manager) Warmup(ctx context.Context) error {
	m.Hardware(ctx)
	if _, err := m.EmbeddingModel(ctx); err != nil {
		return err
	}
	if _, err := m.GenerationModel(ctx); err != nil {
		return err
	}
	return nil
}

// AcquireGenerationSlot blocks until a generation slot is free, the queue
// wait times out, or ctx is cancelled.
func (m *Manager) AcquireGenerationSlot(ctx context.Context) (release func(), err error) {
	return m.limiter.Acquire(ctx)
}
