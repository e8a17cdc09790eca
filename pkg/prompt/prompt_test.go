package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroguard/agroguard/pkg/models"
)

func build(t *testing.T, req models.Request) Prompt {
	t.Helper()
	n := req.Normalize()
	p, err := Build(n, models.SchemaFor(n.UseCase()))
	require.NoError(t, err)
	return p
}

func TestBuildEmbedsFieldsAndContract(t *testing.T) {
	p := build(t, models.SpoilageRequest{Crop: "Tomato", Temperature: 36, Humidity: 90, DaysStored: 10, Region: "Nashik"})

	assert.True(t, p.JSON)
	assert.Empty(t, p.System)
	text := p.Text()
	for _, want := range []string{
		"- Crop: Tomato",
		"- Storage temperature (°C): 36",
		"- Relative humidity (%): 90",
		"- Days in storage: 10",
		"- Region: Nashik",
		"- Storage type: not provided",
		`"risk_level" (string, one of: Low, Medium, High)`,
		`"risk_score" (number)`,
		`"recommendations" (array of strings)`,
		"single JSON object",
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "Translate only text values")
}

func TestBuildTranslationInstruction(t *testing.T) {
	p := build(t, models.PriceRequest{Crop: "onion", Market: "Lasalgaon", CostPrice: 12, Language: "Marathi"})

	assert.Contains(t, p.Text(), "Write every text value in Marathi")
	assert.Contains(t, p.Text(), "keep every key and every enum value")
	assert.Contains(t, p.Text(), "one of: rising, falling, stable")
}

func TestBuildDeterministic(t *testing.T) {
	req := models.CropPlanRequest{LastCrop: "wheat", SoilType: "loam", Rainfall: "moderate", Season: "kharif"}
	assert.Equal(t, build(t, req), build(t, req))
}

func TestBuildChat(t *testing.T) {
	p := build(t, models.ChatRequest{Message: "  How do I store onions? ", Language: "Hindi"})

	assert.False(t, p.JSON)
	assert.Equal(t, "How do I store onions?", p.User)
	assert.Contains(t, p.System, "bullet points")
	assert.Contains(t, p.System, "respond in this language: Hindi.")
	assert.True(t, strings.HasPrefix(p.Text(), p.System))
}
