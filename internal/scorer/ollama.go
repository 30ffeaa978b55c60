package scorer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"
)

const defaultOllamaPort = 11434

// OllamaScorer scores frames through a local Ollama server using the
// agent-api vision stack.
type OllamaScorer struct {
	agent  *agent.Agent
	rubric Rubric
}

// NewOllamaScorer connects an agent to the Ollama server at baseURL (e.g.
// "http://localhost:11434"; a missing port defaults to 11434) and selects
// the vision model.
func NewOllamaScorer(ctx context.Context, logger *slog.Logger, baseURL, model string, rubric Rubric) (*OllamaScorer, error) {
	host, port, err := splitOllamaURL(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logrLogger := logr.FromSlogHandler(logger.Handler())

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		BaseURL: host,
		Port:    port,
		Logger:  &logrLogger,
	})
	if err := provider.UseModel(ctx, &core.Model{ID: model}); err != nil {
		return nil, fmt.Errorf("select model %q: %w", model, err)
	}

	visionAgent, err := agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithSystemPrompt(rubric.Role),
		bootstrap.WithLogger(&logrLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("create vision agent: %w", err)
	}
	return &OllamaScorer{agent: visionAgent, rubric: rubric}, nil
}

// Score runs one vision call and validates the structured response. The
// image is read and encoded here so an unreadable frame surfaces as a plain
// error rather than a retryable one.
func (s *OllamaScorer) Score(ctx context.Context, imagePath string) (Result, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("read frame %s: %w", imagePath, err)
	}

	response, err := s.agent.Run(
		ctx,
		agent.WithInput(s.rubric.Prompt()),
		agent.WithImageBase64(base64.StdEncoding.EncodeToString(imageData), "image/jpeg"),
	)
	if err != nil {
		return Result{}, transportError("ollama run: %v", err)
	}
	if response == nil || len(response.Messages) == 0 {
		return Result{}, malformedError("no response messages received from model")
	}
	content := response.Messages[len(response.Messages)-1].Content
	return parsePayload(content)
}

func splitOllamaURL(baseURL string) (host string, port int, err error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "http://localhost", defaultOllamaPort, nil
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", 0, fmt.Errorf("parse ollama url %q: %w", baseURL, err)
	}
	port = defaultOllamaPort
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("parse ollama port %q: %w", p, err)
		}
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + parsed.Hostname(), port, nil
}
