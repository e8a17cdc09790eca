// Package prompt renders decision requests into provider prompts.
package prompt

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/agroguard/agroguard/pkg/models"
)

// Prompt is a rendered prompt. System is empty for generative use cases,
// which send a single self-contained document.
type Prompt struct {
	System string
	User   string
	// JSON is set when the answer must be a JSON object.
	JSON bool
}

// Text renders the prompt as one document.
func (p Prompt) Text() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"english": func(lang string) bool {
		return strings.EqualFold(lang, models.DefaultLanguage)
	},
}

var advisory = template.Must(template.New("advisory").Funcs(funcs).Parse(
	`You are AgroGuard, an agricultural expert helping smallholder farmers.
Task: {{.Task}}

Inputs:
{{range .Fields}}- {{.Label}}: {{if .Value}}{{.Value}}{{else}}not provided{{end}}
{{end}}
Respond with a single JSON object and nothing else. Do not wrap it in markdown or code fences.
The object must contain exactly these keys:
{{range .Schema.Fields}}- "{{.Name}}" ({{.Kind}}{{if .Enum}}, one of: {{join .Enum ", "}}{{end}}): {{.Description}}
{{end}}{{if not (english .Language)}}
Write every text value in {{.Language}}. Translate only text values: keep every key and every enum value exactly as listed above, in English.
{{end}}`))

var persona = template.Must(template.New("persona").Funcs(funcs).Parse(
	`You are the AgroGuard AI Assistant helping farmers. ` +
		`Keep answers extremely brief and to the point, and use bullet points for any advice, steps or data. ` +
		`Never use long paragraphs. ` +
		`You must respond in this language: {{.Language}}.`))

var tasks = map[models.UseCase]string{
	models.UseCaseSpoilage: "Assess the spoilage risk of the stored produce below and recommend how to reduce post-harvest losses.",
	models.UseCasePrice:    "Forecast the market price per kg of the crop below and estimate the profit over the farmer's cost price.",
	models.UseCaseCropPlan: "Recommend the best next crop with scientific justification, soil regeneration advice, a crop rotation cycle, risk factors (weather, pests, soil, economics) and further actionable suggestions.",
}

// Build renders the prompt for a normalized request. It is deterministic:
// equal requests always produce equal prompts.
func Build(req models.Request, schema models.Schema) (Prompt, error) {
	data := struct {
		Task     string
		Fields   []models.Field
		Schema   models.Schema
		Language string
	}{
		Task:     tasks[req.UseCase()],
		Fields:   req.Fields(),
		Schema:   schema,
		Language: req.Lang(),
	}

	if schema.TextField != "" {
		var sys bytes.Buffer
		if err := persona.Execute(&sys, data); err != nil {
			return Prompt{}, err
		}
		var user []string
		for _, f := range data.Fields {
			user = append(user, f.Value)
		}
		return Prompt{System: sys.String(), User: strings.Join(user, "\n")}, nil
	}

	var buf bytes.Buffer
	if err := advisory.Execute(&buf, data); err != nil {
		return Prompt{}, err
	}
	return Prompt{User: buf.String(), JSON: true}, nil
}
