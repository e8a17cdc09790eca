package models

import "time"

// AuditEntry represents one audited live attempt against a provider.
type AuditEntry struct {
	RequestID        string    `json:"request_id"`
	Attempt          int       `json:"attempt"`
	UseCase          UseCase   `json:"use_case"`
	CacheKeyHash     string    `json:"cache_key_hash"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Prompt           string    `json:"prompt,omitempty"`
	ResponseBody     string    `json:"response_body,omitempty"`
	Outcome          string    `json:"outcome"`
	StatusCode       int       `json:"status_code"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled         bool     `yaml:"enabled"`
	DBPath          string   `yaml:"db_path"`
	RetentionDays   int      `yaml:"retention_days"`
	Include         []string `yaml:"include"` // "prompts", "responses"
	ExcludeUseCases []string `yaml:"exclude_use_cases"`
	MaxBodySize     int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	UseCase   UseCase
	Provider  string
	Outcome   string
	Since     time.Time
	RequestID string
	Limit     int
}

// AuditStat holds aggregate audit counts for a use case/outcome/day combination.
type AuditStat struct {
	UseCase UseCase
	Outcome string
	Day     string
	Count   int
}
