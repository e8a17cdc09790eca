package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agroguard/agroguard/pkg/models"
)

// Tracker records and queries upstream token usage and gateway decisions.
type Tracker interface {
	// RecordUsage stores the token usage of one upstream attempt.
	RecordUsage(ctx context.Context, rec models.UsageRecord) error
	// RecordDecision stores the outcome of one gateway call.
	RecordDecision(ctx context.Context, rec models.DecisionRecord) error
	// QueryByProvider returns usage records for a provider since a given time.
	QueryByProvider(ctx context.Context, provider string, since time.Time) ([]models.UsageRecord, error)
	// TotalByProvider returns total tokens used at a provider since a given time.
	TotalByProvider(ctx context.Context, provider string, since time.Time) (int64, error)
	// TotalByProviderAndModel returns total tokens used at a provider and model since a given time.
	TotalByProviderAndModel(ctx context.Context, provider, model string, since time.Time) (int64, error)
	// Summary returns aggregated usage summaries, optionally filtered by provider.
	Summary(ctx context.Context, provider string) ([]models.UsageSummary, error)
	// Decisions returns decision counts per use case and source since a given time.
	Decisions(ctx context.Context, since time.Time) ([]models.DecisionSummary, error)
	// FallbackReasons returns fallback counts per reason since a given time.
	FallbackReasons(ctx context.Context, since time.Time) (map[string]int, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	use_case TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_provider_time ON usage_records(provider, created_at);
`

const createDecisionsTable = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	use_case TEXT NOT NULL,
	source TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createUsageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if _, err := db.Exec(createDecisionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate decisions table: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// RecordUsage stores a usage record.
func (t *SQLiteTracker) RecordUsage(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (provider, model, use_case, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Provider, rec.Model, string(rec.UseCase), rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// RecordDecision stores a decision record.
func (t *SQLiteTracker) RecordDecision(ctx context.Context, rec models.DecisionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO decisions (request_id, use_case, source, reason, provider, model, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, string(rec.UseCase), string(rec.Source), rec.Reason, rec.Provider, rec.Model, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// QueryByProvider returns usage records for a provider since a given time.
func (t *SQLiteTracker) QueryByProvider(ctx context.Context, provider string, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, provider, model, use_case, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		 FROM usage_records WHERE provider = ? AND created_at >= ? ORDER BY created_at DESC`,
		provider, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var uc string
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &uc, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.UseCase = models.UseCase(uc)
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalByProvider returns total tokens used at a provider since a given time.
func (t *SQLiteTracker) TotalByProvider(ctx context.Context, provider string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE provider = ? AND created_at >= ?`,
		provider, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

// TotalByProviderAndModel returns total tokens used at a provider and model since a given time.
func (t *SQLiteTracker) TotalByProviderAndModel(ctx context.Context, provider, model string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE provider = ? AND model = ? AND created_at >= ?`,
		provider, model, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage by model: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by provider and model.
func (t *SQLiteTracker) Summary(ctx context.Context, provider string) ([]models.UsageSummary, error) {
	query := `SELECT provider, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_records`
	var args []any
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` GROUP BY provider, model ORDER BY provider, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Provider, &s.Model, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Decisions returns decision counts grouped by use case and source.
func (t *SQLiteTracker) Decisions(ctx context.Context, since time.Time) ([]models.DecisionSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT use_case, source, COUNT(*), AVG(latency_ms)
		 FROM decisions WHERE created_at >= ?
		 GROUP BY use_case, source ORDER BY use_case, source`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("decision summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.DecisionSummary
	for rows.Next() {
		var s models.DecisionSummary
		var uc, src string
		if err := rows.Scan(&uc, &src, &s.Count, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan decision summary: %w", err)
		}
		s.UseCase = models.UseCase(uc)
		s.Source = models.Source(src)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// FallbackReasons returns fallback counts keyed by reason.
func (t *SQLiteTracker) FallbackReasons(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT reason, COUNT(*) FROM decisions WHERE source = ? AND created_at >= ? GROUP BY reason`,
		string(models.SourceFallback), since,
	)
	if err != nil {
		return nil, fmt.Errorf("fallback reasons: %w", err)
	}
	defer rows.Close()

	reasons := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan fallback reason: %w", err)
		}
		reasons[reason] = n
	}
	return reasons, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
