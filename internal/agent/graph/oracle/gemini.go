package oracle

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/datachat-core/server/internal/agent/model"
	logx "github.com/datachat-core/server/pkg/logger"
)

// ModelsConfig holds the configuration for chat model creation.
type ModelsConfig struct {
	APIKey    string
	BaseURL   string
	Analyst   *model.AnalystModelConfig
	Responder *model.ResponderModelConfig
}

// Models holds the two chat models the workflow uses: the analyst (relevance,
// query generation, transformation, grading) and the responder (question
// rewriting, answer formatting).
type Models struct {
	Analyst            *gemini.ChatModel
	Responder          *gemini.ChatModel
	AnalystModelName   string
	ResponderModelName string
}

// NewGeminiModels creates both chat models with the given configuration.
func NewGeminiModels(ctx context.Context, cfg ModelsConfig) (*Models, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	analyst, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Analyst.Model,
		Temperature: &cfg.Analyst.Temperature,
		MaxTokens:   &cfg.Analyst.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating analyst model")
		return nil, fmt.Errorf("error creating analyst model: %w", err)
	}

	responder, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Responder.Model,
		Temperature: &cfg.Responder.Temperature,
		MaxTokens:   &cfg.Responder.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating responder model")
		return nil, fmt.Errorf("error creating responder model: %w", err)
	}

	return &Models{
		Analyst:            analyst,
		Responder:          responder,
		AnalystModelName:   cfg.Analyst.Model,
		ResponderModelName: cfg.Responder.Model,
	}, nil
}
