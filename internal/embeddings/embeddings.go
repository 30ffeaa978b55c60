// Package embeddings generates vector embeddings for frame descriptions
// through the backend's /v1/embeddings endpoint, with worker-pool
// concurrency and content-addressed caching.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultEmbedTimeout = 30 * time.Second

// Result carries one embedding outcome.
type Result struct {
	Content   string
	Embedding []float32
	Error     error
}

type work struct {
	ctx     context.Context
	content string
	result  chan<- Result
}

// Service manages embedding generation and caching.
type Service struct {
	baseURL    string
	model      string
	httpClient *http.Client
	workQueue  chan work
	cache      sync.Map
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewService starts numWorkers goroutines serving embedding requests
// against the OpenAI-compatible endpoint at baseURL.
func NewService(baseURL, model string, numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = 2
	}
	s := &Service{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      model,
		httpClient: &http.Client{Timeout: defaultEmbedTimeout},
		workQueue:  make(chan work, 100),
	}
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Service) worker() {
	defer s.wg.Done()
	for item := range s.workQueue {
		if cached, ok := s.cache.Load(item.content); ok {
			if embedding, valid := cached.([]float32); valid {
				item.result <- Result{Content: item.content, Embedding: embedding}
				continue
			}
		}

		embedding, err := s.generate(item.ctx, item.content)
		if err == nil {
			s.cache.Store(item.content, embedding)
		}
		item.result <- Result{Content: item.content, Embedding: embedding, Error: err}
	}
}

// GetEmbedding queues an embedding request and returns the result channel.
func (s *Service) GetEmbedding(ctx context.Context, content string) <-chan Result {
	resultChan := make(chan Result, 1)
	select {
	case s.workQueue <- work{ctx: ctx, content: content, result: resultChan}:
	default:
		resultChan <- Result{
			Content: content,
			Error:   fmt.Errorf("embedding queue is full"),
		}
	}
	return resultChan
}

// Embed is the synchronous form of GetEmbedding.
func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	select {
	case result := <-s.GetEmbedding(ctx, content):
		return result.Embedding, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (s *Service) generate(ctx context.Context, content string) ([]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	encoded, err := json.Marshal(embedRequest{Model: s.model, Input: content})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}
	endpoint, err := url.JoinPath(s.baseURL, "/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("build embed url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("embed http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed response carried no vector")
	}
	return parsed.Data[0].Embedding, nil
}

// Close shuts down the workers after draining queued requests.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.workQueue)
	})
	s.wg.Wait()
}
