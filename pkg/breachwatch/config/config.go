package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/normalize"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

// SupportedTaxonomy is the range of taxonomy file versions this build reads.
const SupportedTaxonomy = "^1"

// Sources represents the sources configuration
type Sources struct {
	Temporal Temporal `yaml:"temporal"`
	Sources  []Source `yaml:"sources"`
}

// Source describes one publisher
type Source struct {
	ID     int                 `yaml:"id"`
	Name   string              `yaml:"name"`
	Locale string              `yaml:"locale"`
	Fields map[string][]string `yaml:"fields"`
}

// Temporal holds the date parser settings
type Temporal struct {
	MinYear         int      `yaml:"min_year"`
	FutureTolerance string   `yaml:"future_tolerance"`
	NonDateTokens   []string `yaml:"non_date_tokens"`
	OrgStopWords    []string `yaml:"org_stop_words"`
}

// Taxonomy represents the data-type taxonomy configuration
type Taxonomy struct {
	Version string         `yaml:"version"`
	Rules   []TaxonomyRule `yaml:"rules"`
}

// TaxonomyRule maps phrases to one tag
type TaxonomyRule struct {
	Tag     string   `yaml:"tag"`
	Phrases []string `yaml:"phrases"`
}

var canonicalFields = map[string]bool{
	record.FieldOriginURL:        true,
	record.FieldOrganizationName: true,
	record.FieldBreachDate:       true,
	record.FieldReportedDate:     true,
	record.FieldAffected:         true,
	record.FieldWhatWasLeaked:    true,
	record.FieldNaturalKey:       true,
}

// LoadSources loads and validates the sources file
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var src Sources
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}

	seen := make(map[int]bool, len(src.Sources))
	for _, s := range src.Sources {
		if s.ID <= 0 {
			return nil, fmt.Errorf("%w: source %q has no positive id", internalerr.ErrInvalidConfig, s.Name)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate source id %d", internalerr.ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
		for field := range s.Fields {
			if !canonicalFields[field] {
				return nil, fmt.Errorf("%w: source %d maps unknown field %q", internalerr.ErrInvalidConfig, s.ID, field)
			}
		}
	}
	if _, err := src.Temporal.Tolerance(); err != nil {
		return nil, err
	}
	return &src, nil
}

// SourceConfigs converts the file form into normalizer configs.
func (s *Sources) SourceConfigs() []normalize.SourceConfig {
	out := make([]normalize.SourceConfig, 0, len(s.Sources))
	for _, src := range s.Sources {
		out = append(out, normalize.SourceConfig{
			ID:     src.ID,
			Name:   src.Name,
			Locale: src.Locale,
			Fields: src.Fields,
		})
	}
	return out
}

// Tolerance parses FutureTolerance. Besides Go durations ("720h") it accepts
// whole days ("30d"). Empty returns nil, meaning the parser default; "0d" is
// kept as zero.
func (t Temporal) Tolerance() (*time.Duration, error) {
	s := strings.TrimSpace(t.FutureTolerance)
	if s == "" {
		return nil, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: future_tolerance %q", internalerr.ErrInvalidConfig, t.FutureTolerance)
		}
		d := time.Duration(n) * 24 * time.Hour
		return &d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("%w: future_tolerance %q", internalerr.ErrInvalidConfig, t.FutureTolerance)
	}
	return &d, nil
}

// LoadTaxonomy loads a taxonomy file and checks its version is supported
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}

	v, err := semver.NewVersion(tax.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: taxonomy version %q: %v", internalerr.ErrInvalidConfig, tax.Version, err)
	}
	supported, err := semver.NewConstraint(SupportedTaxonomy)
	if err != nil {
		return nil, err
	}
	if !supported.Check(v) {
		return nil, fmt.Errorf("%w: taxonomy version %s outside %s", internalerr.ErrInvalidConfig, v, SupportedTaxonomy)
	}
	return &tax, nil
}
