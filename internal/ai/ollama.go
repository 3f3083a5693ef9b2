package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ollamaConfig struct {
	BaseURL string `json:"base_url"`
}

type ollamaProvider struct {
	client *api.Client
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature":    opts.Temperature,
			"top_p":          opts.TopP,
			"repeat_penalty": opts.RepeatPenalty,
			"num_predict":    opts.MaxNewTokens,
		},
	}
	var out strings.Builder
	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (p *ollamaProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EnsureModel implements the tiered loading order: a model already present in
// the local ollama store is used as-is, otherwise it is pulled from the hub.
// Both failing is a startup-fatal condition for the caller.
func (p *ollamaProvider) EnsureModel(ctx context.Context, model string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("model", model))
	list, err := p.client.List(ctx)
	if err == nil {
		for _, m := range list.Models {
			if m.Name == model || m.Model == model {
				logger.Info("model found in local cache")
				return nil
			}
		}
	} else {
		logger.Warn("list local models failed, attempting pull", zap.Error(err))
	}
	logger.Info("pulling model from hub")
	pullErr := p.client.Pull(ctx, &api.PullRequest{Model: model}, func(resp api.ProgressResponse) error {
		if resp.Total > 0 && resp.Completed == resp.Total {
			logger.Info("pull layer complete", zap.String("status", resp.Status))
		}
		return nil
	})
	if pullErr != nil {
		return fmt.Errorf("model %s not cached and pull failed: %w", model, pullErr)
	}
	return nil
}

func createOllamaFactory(args interface{}) (IProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	raw := cfg.BaseURL
	if raw == "" {
		raw = "http://127.0.0.1:11434"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base_url: %w", err)
	}
	client := api.NewClient(base, &http.Client{Timeout: 30 * time.Minute})
	return &ollamaProvider{client: client}, nil
}

func init() {
	Register("ollama", createOllamaFactory)
}
