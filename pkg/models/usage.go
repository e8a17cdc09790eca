package models

import "time"

// Usage represents token usage reported by a provider response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks token usage of one upstream attempt.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	UseCase          UseCase   `json:"use_case"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates upstream usage per provider and model.
type UsageSummary struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	RequestCount    int    `json:"request_count"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalTokens     int    `json:"total_tokens"`
}

// DecisionRecord is the persisted outcome of one gateway call.
type DecisionRecord struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	UseCase   UseCase   `json:"use_case"`
	Source    Source    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionSummary aggregates decisions per use case and source.
type DecisionSummary struct {
	UseCase      UseCase `json:"use_case"`
	Source       Source  `json:"source"`
	Count        int     `json:"count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
