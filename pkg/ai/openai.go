package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/costwatch/cost-advisor/pkg/analyzer"
	"github.com/costwatch/cost-advisor/pkg/models"
	"github.com/costwatch/cost-advisor/pkg/resilience"
)

// chatCompleter is the slice of the OpenAI client this package uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIStrategy asks a chat model to refine the deterministic analysis
// for one resource. The local analyzer still computes the usage
// statistics; the model only decides the action, risk and narrative.
// Responses that do not match the expected schema are rejected with a
// SchemaViolationError so the caller can fall back instead of acting on
// malformed advice.
type OpenAIStrategy struct {
	client   chatCompleter
	model    string
	analyzer *analyzer.Analyzer
	log      *zap.Logger
}

// NewOpenAI creates the LLM-backed strategy.
func NewOpenAI(apiKey, model string, a *analyzer.Analyzer, log *zap.Logger) *OpenAIStrategy {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIStrategy{
		client:   openai.NewClient(apiKey),
		model:    model,
		analyzer: a,
		log:      log,
	}
}

func (s *OpenAIStrategy) Name() string { return "openai" }

// resourcePrompt is the JSON payload embedded in the user message.
type resourcePrompt struct {
	ResourceID    string             `json:"resource_id"`
	Kind          string             `json:"kind"`
	Region        string             `json:"region"`
	Configuration string             `json:"configuration"`
	Labels        map[string]string  `json:"labels,omitempty"`
	Pattern       string             `json:"usage_pattern"`
	Stats         models.UsageStats  `json:"usage_stats"`
	BaselineSteps []string           `json:"baseline_steps,omitempty"`
	Baseline      baselineAssessment `json:"baseline_assessment"`
}

type baselineAssessment struct {
	Action         string  `json:"action"`
	TargetConfig   string  `json:"target_config,omitempty"`
	MonthlySavings float64 `json:"monthly_savings_usd"`
	Reason         string  `json:"reason"`
}

// modelVerdict is what the model must answer with.
type modelVerdict struct {
	Action         string   `json:"action"`
	TargetConfig   string   `json:"target_config"`
	Reason         string   `json:"reason"`
	Risk           string   `json:"risk"`
	Priority       string   `json:"priority"`
	Confidence     float64  `json:"confidence"`
	MonthlySavings float64  `json:"monthly_savings_usd"`
	Steps          []string `json:"steps"`
}

const systemPrompt = `You are a cloud cost optimization reviewer. You receive one resource's usage statistics together with a baseline assessment from a rule engine. Confirm or adjust the assessment.

Respond with a single JSON object and nothing else:
{
  "action": "DOWNSIZE" | "UPSIZE" | "DELETE" | "OPTIMIZE" | "NO_CHANGE",
  "target_config": "<configuration to move to, or empty>",
  "reason": "<one sentence>",
  "risk": "LOW" | "MEDIUM" | "HIGH",
  "priority": "HIGH" | "MEDIUM" | "LOW",
  "confidence": <0.0 to 1.0>,
  "monthly_savings_usd": <number, 0 or greater>,
  "steps": ["<ordered implementation steps>"]
}`

// Recommend runs the local analysis, asks the model to review it, and
// overlays the validated verdict on the locally computed statistics.
func (s *OpenAIStrategy) Recommend(ctx context.Context, resource models.ResourceRecord) (models.OptimizationRecommendation, error) {
	base := s.analyzer.Analyze(resource)

	payload, err := json.MarshalIndent(resourcePrompt{
		ResourceID:    resource.ID,
		Kind:          string(resource.Kind),
		Region:        resource.Region,
		Configuration: resource.Configuration,
		Labels:        resource.Labels,
		Pattern:       string(base.Pattern),
		Stats:         base.Stats,
		BaselineSteps: base.Steps,
		Baseline: baselineAssessment{
			Action:         string(base.Action),
			TargetConfig:   base.TargetConfig,
			MonthlySavings: base.MonthlySavings,
			Reason:         base.Reason,
		},
	}, "", "  ")
	if err != nil {
		return models.OptimizationRecommendation{}, fmt.Errorf("marshaling resource prompt: %w", err)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return models.OptimizationRecommendation{}, resilience.Transient("openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return models.OptimizationRecommendation{}, &resilience.SchemaViolationError{Reason: "empty completion response"}
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return models.OptimizationRecommendation{}, err
	}

	s.log.Debug("model verdict accepted",
		zap.String("resource_id", resource.ID),
		zap.String("action", verdict.Action),
		zap.Float64("confidence", verdict.Confidence))

	rec := base
	rec.Action = models.ActionType(verdict.Action)
	rec.TargetConfig = verdict.TargetConfig
	rec.Reason = verdict.Reason
	rec.Risk = models.RiskLevel(verdict.Risk)
	rec.Priority = models.Priority(verdict.Priority)
	rec.Confidence = verdict.Confidence
	rec.MonthlySavings = verdict.MonthlySavings
	rec.AnnualSavings = verdict.MonthlySavings * 12
	if len(verdict.Steps) > 0 {
		rec.Steps = verdict.Steps
	}
	return rec, nil
}

// parseVerdict strips markdown fences, unmarshals the verdict and
// enforces the response contract.
func parseVerdict(content string) (modelVerdict, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var v modelVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return modelVerdict{}, &resilience.SchemaViolationError{Reason: fmt.Sprintf("response is not valid JSON: %v", err)}
	}
	if err := validateVerdict(v); err != nil {
		return modelVerdict{}, err
	}
	return v, nil
}

func validateVerdict(v modelVerdict) error {
	switch models.ActionType(v.Action) {
	case models.ActionDownsize, models.ActionUpsize, models.ActionDelete,
		models.ActionOptimize, models.ActionNoChange:
	default:
		return &resilience.SchemaViolationError{Reason: fmt.Sprintf("unknown action %q", v.Action)}
	}
	switch models.RiskLevel(v.Risk) {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		return &resilience.SchemaViolationError{Reason: fmt.Sprintf("unknown risk %q", v.Risk)}
	}
	switch models.Priority(v.Priority) {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
	default:
		return &resilience.SchemaViolationError{Reason: fmt.Sprintf("unknown priority %q", v.Priority)}
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return &resilience.SchemaViolationError{Reason: fmt.Sprintf("confidence %.2f outside [0, 1]", v.Confidence)}
	}
	if v.MonthlySavings < 0 {
		return &resilience.SchemaViolationError{Reason: fmt.Sprintf("negative monthly savings %.2f", v.MonthlySavings)}
	}
	if strings.TrimSpace(v.Reason) == "" {
		return &resilience.SchemaViolationError{Reason: "missing reason"}
	}
	return nil
}
