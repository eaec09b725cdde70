package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cognicore/breachwatch/pkg/breachwatch/classify"
	"github.com/cognicore/breachwatch/pkg/breachwatch/internalerr"
	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoaderAllEmpty(t *testing.T) {
	loader := Loader{}

	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("Empty loader should succeed: %v", err)
	}
	if comp.Normalizer == nil || comp.Temporal == nil {
		t.Error("Should have normalizer and date parser")
	}
	if comp.Taxonomy == nil || comp.Taxonomy.Version().String() != classify.DefaultVersion {
		t.Error("Should fall back to the built-in taxonomy")
	}
	if len(comp.Sources) != 0 {
		t.Errorf("Sources should be empty, got %d", len(comp.Sources))
	}
}

func TestLoaderNonExistentFiles(t *testing.T) {
	for _, loader := range []Loader{
		{SourcesPath: "/nonexistent/sources.yaml"},
		{TaxonomyPath: "/nonexistent/taxonomy.yaml"},
	} {
		if _, err := loader.Load(); err == nil {
			t.Errorf("Should error on nonexistent file: %+v", loader)
		}
	}
}

func TestLoaderValidFiles(t *testing.T) {
	srcPath := writeFile(t, "sources.yaml", `
temporal:
  min_year: 2000
  future_tolerance: 7d
  non_date_tokens: [see attached]
sources:
  - id: 9
    name: Example AG
    locale: en-GB
    fields:
      organization_name: [Covered Entity]
      breach_date: [Incident]
`)
	taxPath := writeFile(t, "taxonomy.yaml", `
version: 1.2.0
rules:
  - tag: financial
    phrases: [iban]
  - tag: contact-info
    phrases: [email]
`)

	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	loader := Loader{SourcesPath: srcPath, TaxonomyPath: taxPath, Now: func() time.Time { return now }}
	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("Valid files should load: %v", err)
	}

	if comp.Taxonomy.Version().String() != "1.2.0" {
		t.Errorf("taxonomy version = %s", comp.Taxonomy.Version())
	}
	if len(comp.Sources) != 1 || comp.Sources[0].Locale != "en-GB" {
		t.Fatalf("sources = %+v", comp.Sources)
	}

	if r := comp.Temporal.Parse("see attached", ""); r.OK {
		t.Error("configured non-date token should be rejected")
	}
	if r := comp.Temporal.Parse("1999-05-01", ""); r.OK {
		t.Error("min_year should apply")
	}
	if r := comp.Temporal.Parse("2026-11-01", ""); r.OK {
		t.Error("future tolerance of 7 days should apply")
	}

	rec, err := comp.Normalizer.Normalize(record.RawExtraction{
		SourceID: 9,
		Fields: map[string]any{
			"Covered Entity":  "Example Ltd",
			"Incident":        "02/03/2024",
			"what_was_leaked": "IBAN and email",
		},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.OrganizationName != "Example Ltd" || rec.BreachDate.ISO() != "2024-03-02" {
		t.Errorf("source config not applied: %q %q", rec.OrganizationName, rec.BreachDate.ISO())
	}
	if !reflect.DeepEqual(rec.DataTypes, []string{"financial", "contact-info"}) || rec.TaxonomyVersion != "1.2.0" {
		t.Errorf("taxonomy not applied: %v %s", rec.DataTypes, rec.TaxonomyVersion)
	}
}

func TestLoaderInvalidFiles(t *testing.T) {
	tests := []struct {
		name   string
		loader func(t *testing.T) Loader
	}{
		{"malformed sources", func(t *testing.T) Loader {
			return Loader{SourcesPath: writeFile(t, "s.yaml", "sources: [unclosed\n")}
		}},
		{"duplicate source id", func(t *testing.T) Loader {
			return Loader{SourcesPath: writeFile(t, "s.yaml", "sources:\n  - id: 1\n  - id: 1\n")}
		}},
		{"missing source id", func(t *testing.T) Loader {
			return Loader{SourcesPath: writeFile(t, "s.yaml", "sources:\n  - name: nameless\n")}
		}},
		{"unknown canonical field", func(t *testing.T) Loader {
			return Loader{SourcesPath: writeFile(t, "s.yaml", "sources:\n  - id: 1\n    fields:\n      ssn: [SSN]\n")}
		}},
		{"bad tolerance", func(t *testing.T) Loader {
			return Loader{SourcesPath: writeFile(t, "s.yaml", "temporal:\n  future_tolerance: soon\n")}
		}},
		{"malformed taxonomy", func(t *testing.T) Loader {
			return Loader{TaxonomyPath: writeFile(t, "t.yaml", "rules: [unclosed\n")}
		}},
		{"unsupported taxonomy major", func(t *testing.T) Loader {
			return Loader{TaxonomyPath: writeFile(t, "t.yaml", "version: 2.0.0\nrules:\n  - tag: medical\n    phrases: [x]\n")}
		}},
		{"taxonomy without version", func(t *testing.T) Loader {
			return Loader{TaxonomyPath: writeFile(t, "t.yaml", "rules:\n  - tag: medical\n    phrases: [x]\n")}
		}},
		{"unknown tag", func(t *testing.T) Loader {
			return Loader{TaxonomyPath: writeFile(t, "t.yaml", "version: 1.0.0\nrules:\n  - tag: secrets\n    phrases: [x]\n")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := tt.loader(t)
			_, err := loader.Load()
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestTolerance(t *testing.T) {
	tests := map[string]time.Duration{
		"0d":   0,
		"30d":  30 * 24 * time.Hour,
		"720h": 720 * time.Hour,
		" 1d ": 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := Temporal{FutureTolerance: in}.Tolerance()
		if err != nil || got == nil || *got != want {
			t.Errorf("Tolerance(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if got, err := (Temporal{}).Tolerance(); got != nil || err != nil {
		t.Errorf("empty tolerance should select the default, got %v, %v", got, err)
	}
}

func TestLoaderZeroToleranceRejectsFutureDates(t *testing.T) {
	srcPath := writeFile(t, "sources.yaml", "temporal:\n  future_tolerance: 0d\n")
	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

	loader := Loader{SourcesPath: srcPath, Now: func() time.Time { return now }}
	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r := comp.Temporal.Parse("2026-10-25", ""); r.OK {
		t.Error("a zero tolerance should reject dates after now")
	}
	if r := comp.Temporal.Parse("2026-10-19", ""); !r.OK {
		t.Errorf("today should still parse: %s", r.Reason)
	}
}

func TestShippedConfigsLoad(t *testing.T) {
	loader := Loader{
		SourcesPath:  filepath.Join("..", "..", "..", "configs", "sources.yaml"),
		TaxonomyPath: filepath.Join("..", "..", "..", "configs", "taxonomy.yaml"),
	}
	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("shipped configs should load: %v", err)
	}
	if len(comp.Sources) == 0 {
		t.Error("shipped sources should not be empty")
	}
}
