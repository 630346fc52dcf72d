// Package server loads the disallowed term list from YAML or from a comma
// separated setting.
package server

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var defaultFilterTerms = []string{"spam", "badword1", "badword2"}

type filterTermsFile struct {
	Terms []string `yaml:"terms"`
}

// LoadFilterTerms reads a YAML document of the form `terms: [a, b]`.
func LoadFilterTerms(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter terms: %w", err)
	}
	return parseFilterTerms(data)
}

func parseFilterTerms(data []byte) ([]string, error) {
	var f filterTermsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return f.Terms, nil
}

func splitTerms(value string) []string {
	var terms []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}
