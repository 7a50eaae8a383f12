package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"sentinel/domain/core"
	"sentinel/ports"
)

// Config holds settings shared by all council members.
type Config struct {
	APIKey      string
	BaseURL     string
	Temperature float32
}

// CouncilMember is one model backend voting through an OpenAI-compatible
// chat completion API. Distinct members usually differ only by model name;
// pointing BaseURL at a local gateway lets one member proxy a different
// provider entirely.
type CouncilMember struct {
	name        string
	model       string
	temperature float32
	client      *openai.Client
}

// NewCouncilMember creates a council backend for the given model.
func NewCouncilMember(name, model string, cfg Config) (*CouncilMember, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key for council member %s", name)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &CouncilMember{
		name:        name,
		model:       model,
		temperature: cfg.Temperature,
		client:      openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Name implements ports.VoteBackend.
func (c *CouncilMember) Name() string {
	return c.name
}

// Vote implements ports.VoteBackend.
func (c *CouncilMember) Vote(ctx context.Context, finding core.Finding) (core.ModelVote, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: votePrompt(finding)},
		},
	})
	if err != nil {
		return core.ModelVote{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.ModelVote{}, fmt.Errorf("empty completion response")
	}
	return parseVote(resp.Choices[0].Message.Content)
}

const systemPrompt = "You are one member of a risk council reviewing market anomaly findings. " +
	"Respond with a single JSON object and nothing else."

func votePrompt(f core.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Finding from detector %s:\n", f.Detector)
	fmt.Fprintf(&b, "Title: %s\n", f.Title)
	fmt.Fprintf(&b, "Severity: %s, detector confidence: %.2f\n", f.Severity, f.Confidence)
	if f.Symbol != "" {
		fmt.Fprintf(&b, "Symbol: %s (%s)\n", f.Symbol, f.MarketType)
	}
	fmt.Fprintf(&b, "\n%s\n\n", f.Description)
	b.WriteString(`Should this finding be escalated to a human right now? Reply as:
{"verdict": "ACT" | "WATCH" | "IGNORE", "confidence": 0.0-1.0, "rationale": "<one sentence>"}`)
	return b.String()
}

type voteResponse struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
}

// parseVote extracts the JSON object from a completion, tolerating prose or
// code fences around it.
func parseVote(content string) (core.ModelVote, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return core.ModelVote{}, fmt.Errorf("no JSON object in vote response")
	}
	var parsed voteResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return core.ModelVote{}, fmt.Errorf("malformed vote JSON: %w", err)
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return core.ModelVote{
		Action:     core.ParseVoteAction(parsed.Verdict),
		Confidence: conf,
	}, nil
}

// NewCouncil builds one member per configured model.
func NewCouncil(models []string, cfg Config) ([]ports.VoteBackend, error) {
	backends := make([]ports.VoteBackend, 0, len(models))
	for _, model := range models {
		member, err := NewCouncilMember(model, model, cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, member)
	}
	return backends, nil
}

// MockBackend is a canned council member for tests and offline development.
type MockBackend struct {
	BackendName string
	Response    core.ModelVote
	Err         error
}

// Name implements ports.VoteBackend.
func (m *MockBackend) Name() string {
	return m.BackendName
}

// Vote implements ports.VoteBackend.
func (m *MockBackend) Vote(ctx context.Context, _ core.Finding) (core.ModelVote, error) {
	if m.Err != nil {
		return core.ModelVote{}, m.Err
	}
	select {
	case <-ctx.Done():
		return core.ModelVote{}, ctx.Err()
	default:
	}
	return m.Response, nil
}
