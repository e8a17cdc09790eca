package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agroguard/agroguard/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"agroguard_spoilage":     adviceTool[models.SpoilageRequest](),
	"agroguard_price":        adviceTool[models.PriceRequest](),
	"agroguard_crop_plan":    adviceTool[models.CropPlanRequest](),
	"agroguard_chat":         adviceTool[models.ChatRequest](),
	"agroguard_cache_stats":  handleCacheStats,
	"agroguard_stats":        handleStats,
	"agroguard_audit_search": handleAuditSearch,
	"agroguard_budget":       handleBudget,
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var languageProp = prop("string", "Language of the narrative text (optional, default English)")

var allTools = []ToolDefinition{
	{
		Name:        "agroguard_spoilage",
		Description: "Assess the spoilage risk of stored produce from storage conditions.",
		InputSchema: object([]string{"crop", "temperature", "humidity", "days_stored"}, map[string]any{
			"crop":           prop("string", "Crop name"),
			"temperature":    prop("number", "Storage temperature in °C"),
			"humidity":       prop("number", "Relative humidity in percent"),
			"days_stored":    prop("integer", "Days in storage so far"),
			"rainfall_mm":    prop("number", "Recent rainfall in mm (optional)"),
			"storage_type":   prop("string", "Storage type, e.g. warehouse or open shed (optional)"),
			"packaging_type": prop("string", "Packaging, e.g. jute bags or crates (optional)"),
			"region":         prop("string", "Region (optional)"),
			"language":       languageProp,
		}),
	},
	{
		Name:        "agroguard_price",
		Description: "Forecast the market price of a crop and the expected profit.",
		InputSchema: object([]string{"crop", "market", "cost_price"}, map[string]any{
			"crop":        prop("string", "Crop name"),
			"market":      prop("string", "Market (mandi) name"),
			"date":        prop("string", "Target date in YYYY-MM-DD format (optional)"),
			"cost_price":  prop("number", "Cost price per kg in INR"),
			"quantity_kg": prop("number", "Quantity in kg (optional)"),
			"language":    languageProp,
		}),
	},
	{
		Name:        "agroguard_crop_plan",
		Description: "Recommend the next crop and a rotation plan after a harvest.",
		InputSchema: object([]string{"last_crop", "soil_type", "rainfall", "season"}, map[string]any{
			"last_crop": prop("string", "Crop just harvested"),
			"soil_type": prop("string", "Soil type"),
			"rainfall":  prop("string", "Rainfall level, e.g. low, medium or high"),
			"season":    prop("string", "Upcoming season, e.g. kharif or rabi"),
			"region":    prop("string", "Region (optional)"),
			"language":  languageProp,
		}),
	},
	{
		Name:        "agroguard_chat",
		Description: "Ask the farm assistant a free-form question.",
		InputSchema: object([]string{"message"}, map[string]any{
			"message":  prop("string", "The question"),
			"language": languageProp,
		}),
	},
	{
		Name:        "agroguard_cache_stats",
		Description: "Show decision cache statistics (entries, hits, misses, hit rate).",
		InputSchema: object(nil, map[string]any{}),
	},
	{
		Name:        "agroguard_stats",
		Description: "Show upstream token usage and decision outcomes, including fallback reasons.",
		InputSchema: object(nil, map[string]any{
			"provider": prop("string", "Filter usage by provider (optional)"),
			"days":     prop("integer", "Decision window in days (optional, default 7)"),
		}),
	},
	{
		Name:        "agroguard_audit_search",
		Description: "Search the audit log of live provider attempts.",
		InputSchema: object(nil, map[string]any{
			"use_case":   prop("string", "Filter by use case (optional)"),
			"provider":   prop("string", "Filter by provider (optional)"),
			"outcome":    prop("string", "Filter by outcome, e.g. ok or timeout (optional)"),
			"request_id": prop("string", "Filter by request ID (optional)"),
			"since":      prop("string", "Start date in YYYY-MM-DD format (optional)"),
		}),
	},
	{
		Name:        "agroguard_budget",
		Description: "Show token budget usage against limits for each provider.",
		InputSchema: object(nil, map[string]any{
			"provider": prop("string", "Provider name (optional, omit for all)"),
		}),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func parseArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// adviceTool runs one use case through the gateway. The first block holds
// the result JSON, the second how it was produced.
func adviceTool[T models.Request]() toolHandler {
	return func(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
		var args T
		if err := parseArgs(raw, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
		var req models.Request = args
		req = req.Normalize()
		if err := req.Validate(); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}

		res, d := s.advisor.Handle(ctx, req)
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return errorResult("Error encoding result: " + err.Error())
		}
		return ToolCallResult{Content: []ContentBlock{
			{Type: "text", Text: string(data)},
			{Type: "text", Text: formatDecision(d)},
		}}
	}
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	return textResult(formatCacheStats(s.cache.Stats()))
}

type statsArgs struct {
	Provider string `json:"provider"`
	Days     int    `json:"days"`
}

func handleStats(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Tracking is not configured.")
	}
	var args statsArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Days <= 0 {
		args.Days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -args.Days)

	usage, err := s.tracker.Summary(ctx, args.Provider)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	decisions, err := s.tracker.Decisions(ctx, since)
	if err != nil {
		return errorResult("Error fetching decisions: " + err.Error())
	}
	reasons, err := s.tracker.FallbackReasons(ctx, since)
	if err != nil {
		return errorResult("Error fetching fallback reasons: " + err.Error())
	}

	return textResult(formatSummary(usage) + "\n" +
		fmt.Sprintf("Decisions (last %d days)\n", args.Days) + formatDecisions(decisions) + "\n" +
		formatFallbackReasons(reasons))
}

type auditSearchArgs struct {
	UseCase   string `json:"use_case"`
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	RequestID string `json:"request_id"`
	Since     string `json:"since"`
}

func handleAuditSearch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	opts := models.AuditQueryOpts{
		Provider:  args.Provider,
		Outcome:   args.Outcome,
		RequestID: args.RequestID,
		Limit:     50,
	}
	if args.UseCase != "" {
		uc, err := models.ParseUseCase(args.UseCase)
		if err != nil {
			return errorResult(err.Error())
		}
		opts.UseCase = uc
	}
	if args.Since != "" {
		t, err := time.Parse(time.DateOnly, args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

type budgetArgs struct {
	Provider string `json:"provider"`
}

func handleBudget(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	var args budgetArgs
	if err := parseArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	providers := s.providers
	if args.Provider != "" {
		providers = []string{args.Provider}
	}

	var rows []budgetRow
	for _, p := range providers {
		statuses, err := s.enforcer.Status(ctx, p)
		if err != nil {
			return errorResult("Error fetching budget status: " + err.Error())
		}
		for _, st := range statuses {
			rows = append(rows, budgetRow{Provider: p, BudgetStatus: st})
		}
	}
	return textResult(formatBudgetStatus(rows))
}
