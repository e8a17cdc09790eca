package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UseCase names an advisory endpoint variant served by the gateway.
type UseCase string

const (
	UseCaseSpoilage UseCase = "spoilage"
	UseCasePrice    UseCase = "price"
	UseCaseCropPlan UseCase = "crop_plan"
	UseCaseChat     UseCase = "chat"
)

// UseCases lists every use case in a stable order.
var UseCases = []UseCase{UseCaseSpoilage, UseCasePrice, UseCaseCropPlan, UseCaseChat}

// ParseUseCase accepts the canonical name or the CLI-friendly hyphenated form.
func ParseUseCase(s string) (UseCase, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, uc := range UseCases {
		if string(uc) == name {
			return uc, nil
		}
	}
	return "", fmt.Errorf("unknown use case %q", s)
}

// DefaultLanguage is used when a request does not name a target language.
const DefaultLanguage = "English"

// Field is one answer-affecting input, rendered for prompts and cache keys.
type Field struct {
	Name  string
	Label string
	Value string
}

// Request is a use-case specific decision request.
type Request interface {
	// UseCase identifies the endpoint variant.
	UseCase() UseCase
	// Normalize returns a copy with whitespace folded and defaults applied.
	Normalize() Request
	// Validate checks the boundary constraints of every field.
	Validate() error
	// Fields returns the answer-affecting inputs in a stable order, excluding the language.
	Fields() []Field
	// Lang returns the target language for narrative text.
	Lang() string
}

// ValidationError reports a request field that violates its bounds.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	maxShortText = 64
	maxLanguage  = 32
	maxMessage   = 2000
)

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lang(s string) string {
	s = clean(s)
	if s == "" {
		return DefaultLanguage
	}
	return s
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func checkText(field, v string, required bool, max int) error {
	if required && v == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if len([]rune(v)) > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func checkRange(field string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %s and %s", num(lo), num(hi))}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SpoilageRequest asks for the spoilage risk of stored produce.
type SpoilageRequest struct {
	Crop          string  `json:"crop"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	DaysStored    int     `json:"days_stored"`
	RainfallMM    float64 `json:"rainfall_mm,omitempty"`
	StorageType   string  `json:"storage_type,omitempty"`
	PackagingType string  `json:"packaging_type,omitempty"`
	Region        string  `json:"region,omitempty"`
	Language      string  `json:"language,omitempty"`
}

func (r SpoilageRequest) UseCase() UseCase { return UseCaseSpoilage }
func (r SpoilageRequest) Lang() string     { return r.Language }

func (r SpoilageRequest) Normalize() Request {
	r.Crop = clean(r.Crop)
	r.StorageType = clean(r.StorageType)
	r.PackagingType = clean(r.PackagingType)
	r.Region = clean(r.Region)
	r.Language = lang(r.Language)
	return r
}

func (r SpoilageRequest) Validate() error {
	return firstErr(
		checkText("crop", r.Crop, true, maxShortText),
		checkRange("temperature", r.Temperature, -30, 70),
		checkRange("humidity", r.Humidity, 0, 100),
		checkRange("days_stored", float64(r.DaysStored), 0, 730),
		checkRange("rainfall_mm", r.RainfallMM, 0, 2000),
		checkText("storage_type", r.StorageType, false, maxShortText),
		checkText("packaging_type", r.PackagingType, false, maxShortText),
		checkText("region", r.Region, false, maxShortText),
		checkText("language", r.Language, false, maxLanguage),
	)
}

func (r SpoilageRequest) Fields() []Field {
	return []Field{
		{Name: "crop", Label: "Crop", Value: r.Crop},
		{Name: "temperature", Label: "Storage temperature (°C)", Value: num(r.Temperature)},
		{Name: "humidity", Label: "Relative humidity (%)", Value: num(r.Humidity)},
		{Name: "days_stored", Label: "Days in storage", Value: strconv.Itoa(r.DaysStored)},
		{Name: "rainfall_mm", Label: "Recent rainfall (mm)", Value: num(r.RainfallMM)},
		{Name: "storage_type", Label: "Storage type", Value: r.StorageType},
		{Name: "packaging_type", Label: "Packaging", Value: r.PackagingType},
		{Name: "region", Label: "Region", Value: r.Region},
	}
}

// PriceRequest asks for a market price forecast and profit estimate.
type PriceRequest struct {
	Crop       string  `json:"crop"`
	Market     string  `json:"market"`
	Date       string  `json:"date,omitempty"`
	CostPrice  float64 `json:"cost_price"`
	QuantityKG float64 `json:"quantity_kg,omitempty"`
	Language   string  `json:"language,omitempty"`
}

func (r PriceRequest) UseCase() UseCase { return UseCasePrice }
func (r PriceRequest) Lang() string     { return r.Language }

func (r PriceRequest) Normalize() Request {
	r.Crop = clean(r.Crop)
	r.Market = clean(r.Market)
	r.Date = clean(r.Date)
	r.Language = lang(r.Language)
	return r
}

func (r PriceRequest) Validate() error {
	if err := firstErr(
		checkText("crop", r.Crop, true, maxShortText),
		checkText("market", r.Market, true, maxShortText),
		checkRange("cost_price", r.CostPrice, 0, 1e7),
		checkRange("quantity_kg", r.QuantityKG, 0, 1e7),
		checkText("language", r.Language, false, maxLanguage),
	); err != nil {
		return err
	}
	if r.Date != "" {
		if _, err := time.Parse(time.DateOnly, r.Date); err != nil {
			return &ValidationError{Field: "date", Message: "must use YYYY-MM-DD"}
		}
	}
	return nil
}

func (r PriceRequest) Fields() []Field {
	return []Field{
		{Name: "crop", Label: "Crop", Value: r.Crop},
		{Name: "market", Label: "Market (mandi)", Value: r.Market},
		{Name: "date", Label: "Target date", Value: r.Date},
		{Name: "cost_price", Label: "Cost price per kg (INR)", Value: num(r.CostPrice)},
		{Name: "quantity_kg", Label: "Quantity (kg)", Value: num(r.QuantityKG)},
	}
}

// CropPlanRequest asks for the next crop and a rotation plan.
type CropPlanRequest struct {
	LastCrop string `json:"last_crop"`
	SoilType string `json:"soil_type"`
	Rainfall string `json:"rainfall"`
	Season   string `json:"season"`
	Region   string `json:"region,omitempty"`
	Language string `json:"language,omitempty"`
}

func (r CropPlanRequest) UseCase() UseCase { return UseCaseCropPlan }
func (r CropPlanRequest) Lang() string     { return r.Language }

func (r CropPlanRequest) Normalize() Request {
	r.LastCrop = clean(r.LastCrop)
	r.SoilType = clean(r.SoilType)
	r.Rainfall = clean(r.Rainfall)
	r.Season = clean(r.Season)
	r.Region = clean(r.Region)
	r.Language = lang(r.Language)
	return r
}

func (r CropPlanRequest) Validate() error {
	return firstErr(
		checkText("last_crop", r.LastCrop, true, maxShortText),
		checkText("soil_type", r.SoilType, true, maxShortText),
		checkText("rainfall", r.Rainfall, true, maxShortText),
		checkText("season", r.Season, true, maxShortText),
		checkText("region", r.Region, false, maxShortText),
		checkText("language", r.Language, false, maxLanguage),
	)
}

func (r CropPlanRequest) Fields() []Field {
	return []Field{
		{Name: "last_crop", Label: "Last crop", Value: r.LastCrop},
		{Name: "soil_type", Label: "Soil type", Value: r.SoilType},
		{Name: "rainfall", Label: "Rainfall", Value: r.Rainfall},
		{Name: "season", Label: "Growing season", Value: r.Season},
		{Name: "region", Label: "Region", Value: r.Region},
	}
}

// ChatRequest is a free-form question for the assistant.
type ChatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
}

func (r ChatRequest) UseCase() UseCase { return UseCaseChat }
func (r ChatRequest) Lang() string     { return r.Language }

func (r ChatRequest) Normalize() Request {
	r.Message = strings.TrimSpace(r.Message)
	r.Language = lang(r.Language)
	return r
}

func (r ChatRequest) Validate() error {
	return firstErr(
		checkText("message", r.Message, true, maxMessage),
		checkText("language", r.Language, false, maxLanguage),
	)
}

func (r ChatRequest) Fields() []Field {
	return []Field{{Name: "message", Label: "Message", Value: r.Message}}
}
