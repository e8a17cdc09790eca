// Package extract turns raw provider envelopes into schema-conformant results.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agroguard/agroguard/pkg/models"
)

// Extract locates the generated text in raw, parses it and conforms it to
// schema. Every failure is an *Error.
func Extract(raw []byte, schema models.Schema) (models.Result, error) {
	envelope, err := decodeObject(raw)
	if err != nil {
		return nil, fail(ReasonBlockedOrEmpty, fmt.Errorf("decode envelope: %w", err))
	}

	if perr, ok := envelope["error"]; ok && perr != nil {
		return nil, fail(ReasonProviderError, errors.New(providerMessage(perr)))
	}

	text, _, ok := Locate(envelope)
	if !ok {
		return nil, fail(ReasonBlockedOrEmpty, blockReason(envelope))
	}

	return Parse(text, schema)
}

// Parse conforms already-located text to schema.
func Parse(text string, schema models.Schema) (models.Result, error) {
	if schema.TextField != "" {
		out, err := schema.Conform(map[string]any{schema.TextField: strings.TrimSpace(text)})
		if err != nil {
			return nil, fail(ReasonSchemaMismatch, err)
		}
		return out, nil
	}

	obj, err := decodeObject([]byte(StripFences(text)))
	if err != nil {
		return nil, fail(ReasonMalformedText, err)
	}

	out, err := schema.Conform(obj)
	if err != nil {
		return nil, fail(ReasonSchemaMismatch, err)
	}
	return out, nil
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Usage reads token counts from a Gemini usageMetadata or an OpenAI-style
// usage block. Missing counts are zero.
func Usage(raw []byte) models.Usage {
	var env struct {
		UsageMetadata *struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
		Usage *models.Usage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.Usage{}
	}
	var u models.Usage
	switch {
	case env.UsageMetadata != nil:
		u = models.Usage{
			PromptTokens:     env.UsageMetadata.PromptTokenCount,
			CompletionTokens: env.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      env.UsageMetadata.TotalTokenCount,
		}
	case env.Usage != nil:
		u = *env.Usage
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}

func providerMessage(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func blockReason(envelope map[string]any) error {
	if fb, ok := envelope["promptFeedback"].(map[string]any); ok {
		if r, ok := fb["blockReason"].(string); ok {
			return fmt.Errorf("prompt blocked: %s", r)
		}
	}
	if c, ok := envelope["candidates"].([]any); ok && len(c) > 0 {
		if first, ok := c[0].(map[string]any); ok {
			if r, ok := first["finishReason"].(string); ok {
				return fmt.Errorf("no text, finish reason %s", r)
			}
		}
	}
	return errors.New("no known response shape matched")
}
