// Package config loads the YAML files that describe sources and the data-type
// taxonomy, and builds the pipeline components from them.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/classify"
	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/normalize"
	"github.com/cognicore/breachwatch/pkg/breachwatch/temporal"
)

// Loader loads all configuration files and constructs components
type Loader struct {
	SourcesPath  string
	TaxonomyPath string

	// Now overrides the clock of the date parser (tests).
	Now    func() time.Time
	Logger *slog.Logger
}

// Components holds all loaded configuration components
type Components struct {
	Normalizer *normalize.Normalizer
	Taxonomy   *classify.Taxonomy
	Sources    []normalize.SourceConfig
	Temporal   *temporal.Parser
}

// Load reads all configuration files and returns initialized components.
// Empty paths select the built-in defaults.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}
	opts := temporal.Options{Now: l.Now}

	// Load sources
	if l.SourcesPath != "" {
		src, err := LoadSources(l.SourcesPath)
		if err != nil {
			return nil, fmt.Errorf("load sources: %w", err)
		}
		tolerance, _ := src.Temporal.Tolerance()
		opts.MinYear = src.Temporal.MinYear
		opts.FutureTolerance = tolerance
		opts.NonDateTokens = src.Temporal.NonDateTokens
		opts.OrgStopWords = src.Temporal.OrgStopWords
		comp.Sources = src.SourceConfigs()
	}
	comp.Temporal = temporal.New(opts)

	// Load taxonomy
	if l.TaxonomyPath != "" {
		taxConfig, err := LoadTaxonomy(l.TaxonomyPath)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		rules := make([]classify.Rule, len(taxConfig.Rules))
		for i, r := range taxConfig.Rules {
			rules[i] = classify.Rule{Tag: r.Tag, Phrases: r.Phrases}
		}
		comp.Taxonomy, err = classify.NewTaxonomy(taxConfig.Version, rules)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w: %v", internalerr.ErrInvalidConfig, err)
		}
	} else {
		comp.Taxonomy = classify.Default()
	}

	comp.Normalizer = normalize.New(normalize.Options{
		Sources:  comp.Sources,
		Dates:    comp.Temporal,
		Taxonomy: comp.Taxonomy,
		Logger:   l.Logger,
	})
	return comp, nil
}
