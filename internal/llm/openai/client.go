// Package openai implements llm.Client on the OpenAI chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/kenchat/kenchat-backend/internal/llm"
)

// Client wraps the OpenAI API client
type Client struct {
	client *openai.Client
}

// Compile-time interface check
var _ llm.Client = (*Client)(nil)

// NewClient creates an OpenAI-backed completion client. baseURL overrides
// the API endpoint for OpenAI-compatible servers; leave it empty for the
// real API.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Client{client: openai.NewClientWithConfig(cfg)}, nil
}

// Complete performs a non-streaming completion
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, convertRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// StreamComplete performs a streaming completion
func (c *Client) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	openAIReq := convertRequest(req)
	openAIReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, openAIReq)
	if err != nil {
		return nil, fmt.Errorf("openai stream failed: %w", err)
	}

	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		// Every send races ctx so a consumer that stops reading cannot
		// strand this goroutine with the stream held open.
		send := func(chunk llm.StreamChunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(llm.StreamChunk{FinishReason: "stop"})
				return
			}
			if err != nil {
				send(llm.StreamChunk{Err: err})
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]

			chunk := llm.StreamChunk{Delta: choice.Delta.Content}
			if choice.FinishReason != "" {
				chunk.FinishReason = string(choice.FinishReason)
			}
			if !send(chunk) {
				return
			}

			if chunk.FinishReason != "" {
				return
			}
		}
	}()

	return chunks, nil
}

func convertRequest(req llm.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}
