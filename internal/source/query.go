package source

import (
	"fmt"
	"strings"
	"text/template"
)

// Query is a 1C query template plus the textual parameters substituted into it.
type Query struct {
	Name   string
	Text   string
	Params map[string]string
}

// Render substitutes Params into Text. Referencing an unset parameter fails.
func (q Query) Render() (string, error) {
	tmpl, err := template.New(q.Name).Option("missingkey=error").Parse(q.Text)
	if err != nil {
		return "", fmt.Errorf("source: parse query %s: %w", q.Name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, q.Params); err != nil {
		return "", fmt.Errorf("source: render query %s: %w", q.Name, err)
	}
	return b.String(), nil
}
