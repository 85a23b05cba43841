package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	"github.com/bryanwahyu/vulnwatch/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Client asks an OpenAI chat model for a risk assessment of scan results.
type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) Analyze(ctx context.Context, req analysis.Request) (*analysis.Analysis, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o"
	}
	creq := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(req)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		creq.MaxCompletionTokens = maxTokens
	} else {
		creq.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	var out struct {
		Summary          string   `json:"summary"`
		RiskScore        int      `json:"riskScore"`
		Recommendations  []string `json:"recommendations"`
		RiskFactors      []string `json:"riskFactors"`
		EstimatedFixTime string   `json:"estimatedFixTime"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("decoding completion: %w", err)
	}
	if out.RiskScore < 0 {
		out.RiskScore = 0
	}
	if out.RiskScore > 100 {
		out.RiskScore = 100
	}

	return &analysis.Analysis{
		ID:               analysis.AnalysisID(uuid.New().String()),
		Summary:          out.Summary,
		RiskScore:        out.RiskScore,
		Recommendations:  out.Recommendations,
		RiskFactors:      out.RiskFactors,
		EstimatedFixTime: out.EstimatedFixTime,
		CreatedAt:        time.Now().UTC(),
	}, nil
}
