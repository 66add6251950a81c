package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

// descriptionPrompt asks for a concise multi-sentence description. The model
// echoes the prompt in its raw output, so Describe strips it afterwards.
const descriptionPrompt = "Describe what you see in this image in a single, concise paragraph. " +
	"Focus on the most important objects, people, actions, and environment. " +
	"Be specific and accurate rather than general. Limit to 2-3 sentences."

const systemPrompt = "You are a visual analysis assistant specialized in detailed image descriptions. " +
	"If there is a person in the image describe what they are doing in step by step format."

// OllamaConfig selects the Ollama host and vision model.
type OllamaConfig struct {
	BaseURL string
	Port    int
	Model   string
}

// OllamaEngine describes images with a vision model served by Ollama.
type OllamaEngine struct {
	agent  *agent.DefaultAgent
	logger *slog.Logger
}

// NewOllamaEngine connects the provider and loads the model handle once;
// the returned engine is shared read-only by all requests.
func NewOllamaEngine(ctx context.Context, logger *slog.Logger, cfg OllamaConfig) (*OllamaEngine, error) {
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	}
	provider := ollama.NewProvider(opts)

	model := &types.Model{
		ID: cfg.Model,
	}
	provider.UseModel(ctx, model)

	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: systemPrompt,
	}

	return &OllamaEngine{
		agent:  agent.NewAgent(agentConf),
		logger: logger,
	}, nil
}

// Describe runs one inference call for a normalized JPEG frame. The agent
// API takes image paths, so the frame is staged in a temp file for the
// duration of the call.
func (e *OllamaEngine) Describe(ctx context.Context, jpegData []byte) (string, error) {
	tmp, err := os.CreateTemp("", "livefeed-frame-*.jpg")
	if err != nil {
		return "", fmt.Errorf("staging frame: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			e.logger.Error("failed to remove temp frame file", "path", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(jpegData); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing frame file: %w", err)
	}

	response := e.agent.Run(
		ctx,
		agent.WithInput(descriptionPrompt),
		agent.WithImagePath(tmp.Name()),
	)
	if response.Err != nil {
		return "", response.Err
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("no response messages received from model")
	}

	content := response.Messages[len(response.Messages)-1].Content
	return CleanResponse(content), nil
}

// CleanResponse strips the echoed prompt text and surrounding whitespace
// from raw model output.
func CleanResponse(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, descriptionPrompt, ""))
}
