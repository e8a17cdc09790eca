package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/agroguard/agroguard/pkg/models"
)

func conform(t require.TestingT, req models.Request) models.Result {
	got := Synthesize(req)
	out, err := models.SchemaFor(req.UseCase()).Conform(got)
	require.NoError(t, err)
	require.Len(t, got, len(out), "synthesized result has keys outside the schema")
	return out
}

func TestHotHumidStorageIsHighRisk(t *testing.T) {
	req := models.SpoilageRequest{Crop: "tomato", Temperature: 36, Humidity: 90, DaysStored: 10}.Normalize()
	got := conform(t, req)

	assert.Equal(t, "High", got["risk_level"])
	assert.Equal(t, 78.0, got["risk_score"])
	assert.Equal(t, 3.0, got["shelf_life_days"])
	assert.True(t, strings.HasPrefix(got["summary"].(string), Prefix))
	assert.NotEmpty(t, got["recommendations"])
}

func TestSpoilageThresholds(t *testing.T) {
	tests := []struct {
		name  string
		req   models.SpoilageRequest
		score int
		level string
	}{
		{"cool and dry", models.SpoilageRequest{Temperature: 20, Humidity: 30}, 0, "Low"},
		{"warm", models.SpoilageRequest{Temperature: 30, Humidity: 30}, 1, "Medium"},
		{"boundary temperature", models.SpoilageRequest{Temperature: 28, Humidity: 40}, 0, "Low"},
		{"rain", models.SpoilageRequest{Temperature: 20, Humidity: 30, RainfallMM: 6}, 2, "Medium"},
		{"long storage", models.SpoilageRequest{Temperature: 20, Humidity: 30, DaysStored: 8}, 1, "Medium"},
		{"warm humid rain", models.SpoilageRequest{Temperature: 29, Humidity: 41, RainfallMM: 10}, 4, "High"},
		{"worst case", models.SpoilageRequest{Temperature: 40, Humidity: 95, RainfallMM: 50, DaysStored: 30}, 9, "High"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, SpoilageScore(tt.req))
			assert.Equal(t, tt.level, RiskLevel(tt.score))
		})
	}
}

func TestPriceMarkup(t *testing.T) {
	got := conform(t, models.PriceRequest{Crop: "onion", Market: "Lasalgaon", CostPrice: 20, QuantityKG: 100}.Normalize())

	assert.Equal(t, 23.0, got["predicted_price"])
	assert.Equal(t, 300.0, got["expected_profit"])
	assert.Equal(t, "stable", got["trend"])
	assert.Equal(t, "INR", got["currency"])
	assert.True(t, strings.HasPrefix(got["recommendation"].(string), Prefix))
	assert.True(t, strings.HasPrefix(got["summary"].(string), Prefix))

	// Quantity defaults to one kg.
	got = conform(t, models.PriceRequest{Crop: "onion", Market: "Lasalgaon", CostPrice: 20}.Normalize())
	assert.Equal(t, 3.0, got["expected_profit"])
}

func TestCropRotation(t *testing.T) {
	tests := []struct {
		lastCrop, season, want string
	}{
		{"Paddy", "Kharif", "Green gram (moong)"},
		{"wheat", "rabi", "Chickpea"},
		{"Chickpeas", "Kharif", "Maize"},
		{"soybean", "winter", "Wheat"},
		{"pearl millet", "kharif", "Green gram (moong)"},
		{"cotton", "kharif", "Sunn hemp (green manure)"},
		{"tomato", "Rabi", "Mustard"},
	}

	for _, tt := range tests {
		t.Run(tt.lastCrop, func(t *testing.T) {
			got := conform(t, models.CropPlanRequest{LastCrop: tt.lastCrop, SoilType: "loam", Rainfall: "moderate", Season: tt.season}.Normalize())
			assert.Equal(t, tt.want, got["next_crop"])
			assert.True(t, strings.HasPrefix(got["soil_advice"].(string), Prefix))
			assert.True(t, strings.HasPrefix(got["analysis"].(string), Prefix))
		})
	}
}

func TestCropPlanRainfallRisk(t *testing.T) {
	got := conform(t, models.CropPlanRequest{LastCrop: "rice", SoilType: "clay", Rainfall: "Heavy", Season: "kharif"})
	assert.Contains(t, strings.Join(got["risk_factors"].([]string), " "), "Waterlogging")

	got = conform(t, models.CropPlanRequest{LastCrop: "rice", SoilType: "sandy", Rainfall: "low", Season: "rabi"})
	assert.Contains(t, strings.Join(got["risk_factors"].([]string), " "), "Moisture stress")
}

func TestChatReply(t *testing.T) {
	got := conform(t, models.ChatRequest{Message: "hello"})
	assert.True(t, strings.HasPrefix(got["response"].(string), Prefix))
}

func TestSynthesizeIsTotal(t *testing.T) {
	text := rapid.StringN(0, 64, -1)
	rapid.Check(t, func(rt *rapid.T) {
		var req models.Request
		switch rapid.IntRange(0, 3).Draw(rt, "use_case") {
		case 0:
			req = models.SpoilageRequest{
				Crop:        text.Draw(rt, "crop"),
				Temperature: rapid.Float64Range(-30, 70).Draw(rt, "temperature"),
				Humidity:    rapid.Float64Range(0, 100).Draw(rt, "humidity"),
				DaysStored:  rapid.IntRange(0, 730).Draw(rt, "days_stored"),
				RainfallMM:  rapid.Float64Range(0, 2000).Draw(rt, "rainfall_mm"),
				Region:      text.Draw(rt, "region"),
			}
		case 1:
			req = models.PriceRequest{
				Crop:       text.Draw(rt, "crop"),
				Market:     text.Draw(rt, "market"),
				CostPrice:  rapid.Float64Range(0, 1e7).Draw(rt, "cost_price"),
				QuantityKG: rapid.Float64Range(0, 1e7).Draw(rt, "quantity_kg"),
			}
		case 2:
			req = models.CropPlanRequest{
				LastCrop: text.Draw(rt, "last_crop"),
				SoilType: text.Draw(rt, "soil_type"),
				Rainfall: text.Draw(rt, "rainfall"),
				Season:   text.Draw(rt, "season"),
			}
		default:
			req = models.ChatRequest{Message: text.Draw(rt, "message")}
		}
		req = req.Normalize()

		got := Synthesize(req)
		if _, err := models.SchemaFor(req.UseCase()).Conform(got); err != nil {
			rt.Fatalf("fallback for %+v does not conform: %v", req, err)
		}
	})
}
