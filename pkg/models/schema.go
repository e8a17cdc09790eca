package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the JSON value type of a result field.
type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindStringList Kind = "array of strings"
)

// SchemaField describes one required key of a DecisionResult.
type SchemaField struct {
	Name        string
	Kind        Kind
	Enum        []string
	Description string
}

// Schema is the output contract of a use case. Live and fallback results
// must both conform to it.
type Schema struct {
	UseCase UseCase
	Version string
	Fields  []SchemaField
	// TextField, when set, receives the generated text verbatim instead of
	// the text being parsed as a JSON object.
	TextField string
}

// Result is a schema-conformant decision result.
type Result map[string]any

// Clone returns a deep copy so stored results cannot be mutated by callers.
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	out := make(Result, len(r))
	for k, v := range r {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// Keys returns the schema field names in order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Name
	}
	return keys
}

// Conform checks that every schema key is present with a compatible value
// and returns a result holding exactly the schema keys with canonical types.
// Numeric strings become numbers, a lone string becomes a one-item list and
// enum values are matched case-insensitively.
func (s Schema) Conform(in map[string]any) (Result, error) {
	out := make(Result, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := in[f.Name]
		if !ok || raw == nil {
			return nil, fmt.Errorf("missing key %q", f.Name)
		}
		v, err := f.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func (f SchemaField) coerce(raw any) (any, error) {
	switch f.Kind {
	case KindNumber:
		var n float64
		switch v := raw.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", v)
			}
			n = f
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%")), 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", v)
			}
			n = f
		default:
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		// JSON cannot encode these.
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("expected finite number, got %v", raw)
		}
		return n, nil
	case KindStringList:
		switch v := raw.(type) {
		case []string:
			return append([]string(nil), v...), nil
		case []any:
			list := make([]string, 0, len(v))
			for _, item := range v {
				str, err := scalarString(item)
				if err != nil {
					return nil, err
				}
				list = append(list, str)
			}
			return list, nil
		case string:
			return []string{v}, nil
		}
		return nil, fmt.Errorf("expected array of strings, got %T", raw)
	default:
		str, err := scalarString(raw)
		if err != nil {
			return nil, err
		}
		if len(f.Enum) == 0 {
			return str, nil
		}
		for _, allowed := range f.Enum {
			if strings.EqualFold(strings.TrimSpace(str), allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("value %q not in %v", str, f.Enum)
	}
}

func scalarString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case float64:
		return num(s), nil
	case json.Number:
		return s.String(), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

// SchemaFor returns the output contract of a use case.
func SchemaFor(uc UseCase) Schema {
	switch uc {
	case UseCaseSpoilage:
		return spoilageSchema
	case UseCasePrice:
		return priceSchema
	case UseCaseCropPlan:
		return cropPlanSchema
	default:
		return chatSchema
	}
}

var spoilageSchema = Schema{
	UseCase: UseCaseSpoilage,
	Version: "v1",
	Fields: []SchemaField{
		{Name: "risk_level", Kind: KindString, Enum: []string{"Low", "Medium", "High"}, Description: "overall spoilage risk"},
		{Name: "risk_score", Kind: KindNumber, Description: "risk from 0 (none) to 100 (certain loss)"},
		{Name: "shelf_life_days", Kind: KindNumber, Description: "estimated remaining safe storage days"},
		{Name: "recommendations", Kind: KindStringList, Description: "concrete storage or selling actions"},
		{Name: "summary", Kind: KindString, Description: "two or three sentence explanation"},
	},
}

var priceSchema = Schema{
	UseCase: UseCasePrice,
	Version: "v1",
	Fields: []SchemaField{
		{Name: "predicted_price", Kind: KindNumber, Description: "expected market price per kg"},
		{Name: "currency", Kind: KindString, Description: "ISO currency code, INR unless stated otherwise"},
		{Name: "trend", Kind: KindString, Enum: []string{"rising", "falling", "stable"}, Description: "short-term price direction"},
		{Name: "expected_profit", Kind: KindNumber, Description: "profit for the given quantity at the predicted price"},
		{Name: "recommendation", Kind: KindString, Description: "sell, hold or store advice"},
		{Name: "summary", Kind: KindString, Description: "two or three sentence explanation"},
	},
}

var cropPlanSchema = Schema{
	UseCase: UseCaseCropPlan,
	Version: "v1",
	Fields: []SchemaField{
		{Name: "next_crop", Kind: KindString, Description: "best crop to grow next"},
		{Name: "soil_advice", Kind: KindString, Description: "soil regeneration and nutrient recovery advice"},
		{Name: "rotation_plan", Kind: KindStringList, Description: "crop rotation cycle steps with reasoning"},
		{Name: "risk_factors", Kind: KindStringList, Description: "weather, pest, soil and economic risks"},
		{Name: "suggestions", Kind: KindStringList, Description: "additional actionable suggestions"},
		{Name: "analysis", Kind: KindString, Description: "scientific justification for the recommendation"},
	},
}

var chatSchema = Schema{
	UseCase:   UseCaseChat,
	Version:   "v1",
	Fields:    []SchemaField{{Name: "response", Kind: KindString, Description: "assistant reply"}},
	TextField: "response",
}
