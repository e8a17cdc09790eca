// Package fallback synthesizes offline advisory results from request fields
// alone. Every function is pure and total.
package fallback

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/agroguard/agroguard/pkg/models"
)

// Prefix starts every narrative field of a synthesized result.
const Prefix = "Offline estimate:"

// Markup is the margin assumed over cost price when no forecast is available.
const Markup = 0.15

// Synthesize returns a schema-conformant result for a normalized request.
func Synthesize(req models.Request) models.Result {
	switch r := req.(type) {
	case models.SpoilageRequest:
		return spoilage(r)
	case models.PriceRequest:
		return price(r)
	case models.CropPlanRequest:
		return cropPlan(r)
	default:
		return chat()
	}
}

// SpoilageScore applies the fixed storage-condition thresholds.
func SpoilageScore(r models.SpoilageRequest) int {
	score := 0
	switch {
	case r.Temperature > 35:
		score += 3
	case r.Temperature > 28:
		score++
	}
	switch {
	case r.Humidity > 70:
		score += 3
	case r.Humidity > 40:
		score++
	}
	if r.RainfallMM > 5 {
		score += 2
	}
	if r.DaysStored > 7 {
		score++
	}
	return score
}

const maxSpoilageScore = 9

// RiskLevel maps a score to Low, Medium or High.
func RiskLevel(score int) string {
	switch {
	case score >= 4:
		return "High"
	case score >= 1:
		return "Medium"
	default:
		return "Low"
	}
}

var shelfLife = map[string]float64{"High": 3, "Medium": 7, "Low": 14}

var spoilageActions = map[string][]string{
	"High": {
		"Sell or process the produce within 2-3 days",
		"Move stock to a cool, shaded and ventilated store or cold storage",
		"Sort out damaged or rotting produce every day",
	},
	"Medium": {
		"Improve ventilation around the stored produce",
		"Inspect stock every two days and remove damaged items",
		"Plan to sell within a week",
	},
	"Low": {
		"Storage conditions are acceptable",
		"Keep monitoring temperature and humidity",
	},
}

func spoilage(r models.SpoilageRequest) models.Result {
	score := SpoilageScore(r)
	level := RiskLevel(score)

	recs := append([]string(nil), spoilageActions[level]...)
	if r.Humidity > 70 {
		recs = append(recs, "Use raised pallets and breathable packaging to keep moisture off the produce")
	}
	if r.RainfallMM > 5 {
		recs = append(recs, "Cover stock and keep it off wet floors after rain")
	}

	return models.Result{
		"risk_level":      level,
		"risk_score":      math.Round(float64(score) / maxSpoilageScore * 100),
		"shelf_life_days": shelfLife[level],
		"recommendations": recs,
		"summary": fmt.Sprintf("%s %s spoilage risk for %s at %s°C and %s%% humidity after %d days in storage. Live advisory was unavailable, so fixed storage thresholds were used.",
			Prefix, level, orDefault(r.Crop, "the produce"), num(r.Temperature), num(r.Humidity), r.DaysStored),
	}
}

func price(r models.PriceRequest) models.Result {
	predicted := round2(r.CostPrice * (1 + Markup))
	qty := math.Max(r.QuantityKG, 1)
	profit := round2((predicted - r.CostPrice) * qty)

	return models.Result{
		"predicted_price": predicted,
		"currency":        "INR",
		"trend":           "stable",
		"expected_profit": profit,
		"recommendation": fmt.Sprintf("%s sell once the %s price covers your cost plus a %d%% margin (about INR %s per kg).",
			Prefix, orDefault(r.Market, "market"), int(Markup*100), num(predicted)),
		"summary": fmt.Sprintf("%s no live forecast was available for %s, so a stable price with a fixed %d%% markup over your cost price is assumed.",
			Prefix, orDefault(r.Crop, "this crop"), int(Markup*100)),
	}
}

type family int

const (
	familyOther family = iota
	familyCereal
	familyLegume
)

var cereals = []string{"rice", "paddy", "wheat", "maize", "corn", "millet", "bajra", "jowar", "sorghum", "barley", "ragi", "oat"}

var (
	legumeSuffixes = []string{"pea", "bean", "gram", "groundnut", "peanut"}
	legumeNames    = []string{"lentil", "moong", "urad", "soy", "arhar", "tur", "dal", "masoor", "rajma"}
)

func familyOf(crop string) family {
	words := strings.Fields(strings.ToLower(crop))
	for _, w := range words {
		w = strings.TrimSuffix(w, "s")
		if slices.Contains(legumeNames, w) {
			return familyLegume
		}
		for _, suffix := range legumeSuffixes {
			if strings.HasSuffix(w, suffix) {
				return familyLegume
			}
		}
	}
	for _, w := range words {
		if slices.Contains(cereals, strings.TrimSuffix(w, "s")) {
			return familyCereal
		}
	}
	return familyOther
}

func isRabi(season string) bool {
	s := strings.ToLower(season)
	return strings.Contains(s, "rabi") || strings.Contains(s, "winter")
}

func cropPlan(r models.CropPlanRequest) models.Result {
	rabi := isRabi(r.Season)

	var next, soil string
	var rotation []string
	switch familyOf(r.LastCrop) {
	case familyCereal:
		next = "Green gram (moong)"
		if rabi {
			next = "Chickpea"
		}
		soil = "restore nitrogen drawn down by the cereal with a legume, and return crop residue to the field instead of burning it."
		rotation = []string{
			next + " to fix nitrogen after " + orDefault(r.LastCrop, "the cereal"),
			"A cereal such as maize or wheat on the restored nitrogen",
			"A short green manure crop before the next cereal season",
		}
	case familyLegume:
		next = "Maize"
		if rabi {
			next = "Wheat"
		}
		soil = "use the nitrogen left by the legume for a cereal, and add farmyard manure to keep organic matter up."
		rotation = []string{
			next + " to use nitrogen left by " + orDefault(r.LastCrop, "the legume"),
			"A legume such as chickpea or green gram to rebuild nitrogen",
			"A fallow or green manure break if pests build up",
		}
	default:
		next = "Sunn hemp (green manure)"
		if rabi {
			next = "Mustard"
		}
		soil = "grow a green manure or cover crop to rebuild organic matter, and test soil nutrients before the next main crop."
		rotation = []string{
			next + " as a break crop after " + orDefault(r.LastCrop, "the last crop"),
			"A legume to restore nitrogen",
			"A cereal to complete the cycle",
		}
	}

	risks := []string{
		"Pests and diseases carried over from " + orDefault(r.LastCrop, "the last crop"),
		"Market price swings at harvest time",
	}
	rain := strings.ToLower(r.Rainfall)
	switch {
	case strings.Contains(rain, "low") || strings.Contains(rain, "scanty") || strings.Contains(rain, "dry"):
		risks = append(risks, "Moisture stress from low rainfall; plan protective irrigation")
	case strings.Contains(rain, "high") || strings.Contains(rain, "heavy"):
		risks = append(risks, "Waterlogging and root disease from heavy rainfall; keep drainage channels open")
	default:
		risks = append(risks, "Uneven rainfall during the "+orDefault(r.Season, "growing")+" season")
	}

	return models.Result{
		"next_crop":     next,
		"soil_advice":   Prefix + " on " + orDefault(r.SoilType, "this") + " soil, " + soil,
		"rotation_plan": rotation,
		"risk_factors":  risks,
		"suggestions": []string{
			"Test soil before sowing and apply fertilizer to the test result",
			"Use certified seed of a locally recommended variety",
			"Check with the local agriculture office for current advisories",
		},
		"analysis": fmt.Sprintf("%s live analysis was unavailable. %s follows %s by the crop-family rotation rule, which breaks pest cycles and balances soil nitrogen.",
			Prefix, next, orDefault(r.LastCrop, "the last crop")),
	}
}

const chatReply = Prefix + " the AgroGuard assistant cannot reach its advisory service right now. General tips:\n" +
	"- Store produce in a cool, dry and ventilated place\n" +
	"- Irrigate in the early morning or evening to reduce evaporation\n" +
	"- Check crops weekly for pests and disease\n" +
	"- Please try again in a few minutes"

func chat() models.Result {
	return models.Result{"response": chatReply}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
