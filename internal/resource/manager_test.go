package resource

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rstamps01/rag-app-sub001/internal/ai"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

type stubProvider struct {
	name        string
	generateOut string
	generateErr error
	embedErr    error
	ensureErr   error
	dimension   int
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) Generate(ctx context.Context, model, prompt string, opts ai.GenerateOptions) (string, error) {
	return p.generateOut, p.generateErr
}

func (p *stubProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dimension)
	}
	return out, nil
}

func (p *stubProvider) EnsureModel(ctx context.Context, model string) error {
	return p.ensureErr
}

func TestManagerGenerationFallsBack(t *testing.T) {
	primary := &stubProvider{name: "ollama", generateErr: fmt.Errorf("gpu lost")}
	backup := &stubProvider{name: "gemini", generateOut: "from backup"}
	m := NewManager(ManagerConfig{
		GenProvider:     primary,
		GenModel:        "big",
		GenFallbacks:    []ProviderModel{{Provider: backup, Model: "small"}},
		GenerationSlots: 1,
		QueueSize:       1,
	})

	gen, err := m.GenerationModel(context.Background())
	require.NoError(t, err)
	out, err := gen.Generate(context.Background(), "q", ai.GenerateOptions{})
	require.NoError(t, err)
	require.Equal(t, "from backup", out)
	require.Equal(t, "big|small", m.GenerationModelName())
}

func TestManagerSkipsUnreadyFallback(t *testing.T) {
	primary := &stubProvider{name: "ollama", generateOut: "primary answer"}
	backup := &stubProvider{name: "gemini", ensureErr: fmt.Errorf("no quota")}
	m := NewManager(ManagerConfig{
		GenProvider:     primary,
		GenModel:        "big",
		GenFallbacks:    []ProviderModel{{Provider: backup, Model: "small"}},
		GenerationSlots: 1,
		QueueSize:       1,
	})

	gen, err := m.GenerationModel(context.Background())
	require.NoError(t, err)
	require.Equal(t, "big", gen.ModelName())
	require.Equal(t, "big", m.GenerationModelName())
}

func TestManagerEmbeddingFallsBack(t *testing.T) {
	primary := &stubProvider{name: "ollama", embedErr: fmt.Errorf("backend down"), dimension: 4}
	backup := &stubProvider{name: "openai", dimension: 4}
	m := NewManager(ManagerConfig{
		EmbedProvider:   primary,
		EmbedModel:      "e1",
		EmbedDimension:  4,
		EmbedFallbacks:  []ProviderModel{{Provider: backup, Model: "e2"}},
		GenerationSlots: 1,
		QueueSize:       1,
	})

	emb, err := m.EmbeddingModel(context.Background())
	require.NoError(t, err)
	vectors, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, vectors[0], 4)
}

func TestManagerPrimaryEnsureFailureIsFatal(t *testing.T) {
	primary := &stubProvider{name: "ollama", ensureErr: fmt.Errorf("model missing")}
	m := NewManager(ManagerConfig{
		GenProvider:     primary,
		GenModel:        "big",
		GenerationSlots: 1,
		QueueSize:       1,
	})

	_, err := m.GenerationModel(context.Background())
	require.ErrorIs(t, err, appErr.ErrGeneratorUnavailable)
}
