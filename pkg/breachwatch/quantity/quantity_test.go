package quantity

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  int64
		conf  Confidence
	}{
		{"12000", 12000, Exact},
		{"12,000", 12000, Exact},
		{"12.000", 12000, Exact},
		{"12 000", 12000, Exact},
		{"approx. 12,000", 12000, Estimate},
		{"approximately 12,000", 12000, Estimate},
		{"500+", 500, Estimate},
		{"over 1,000", 1000, Estimate},
		{"More than 2,500 individuals", 2500, Estimate},
		{"~300", 300, Estimate},
		{"500-1,000", 1000, Estimate},
		{"500 to 1,000", 1000, Estimate},
		{"1.2 million", 1200000, Estimate},
		{"3 million", 3000000, Exact},
		{"45k", 45000, Exact},
		{"4,000 residents as of 2023", 4000, Exact},
		{"1,234.5", 1234, Estimate},
		{"twelve", 12, Exact},
		{"two million", 2000000, Exact},
		{"0", 0, Exact},
		{"1,000 (discovered in audit)", 1000, Exact},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := Parse(tt.input)
			if res.Value == nil {
				t.Fatalf("Parse(%q) returned nil value", tt.input)
			}
			if *res.Value != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, *res.Value, tt.want)
			}
			if res.Confidence != tt.conf {
				t.Errorf("Parse(%q) confidence = %q, want %q", tt.input, res.Confidence, tt.conf)
			}
			if res.Raw != tt.input {
				t.Errorf("raw not retained: %q", res.Raw)
			}
		})
	}
}

func TestParseUnknown(t *testing.T) {
	for _, input := range []string{"", "  ", "unknown", "Undisclosed", "N/A", "not disclosed", "Redacted", "many", "thousands of customers", "9223372036854775807.9"} {
		res := Parse(input)
		if res.Value != nil {
			t.Errorf("Parse(%q) = %d, want nil", input, *res.Value)
		}
		if res.Confidence != Unknown {
			t.Errorf("Parse(%q) confidence = %q, want unknown", input, res.Confidence)
		}
	}
}

func TestFromValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  *int64
		conf  Confidence
	}{
		{"float integral", 4000.0, ptr(4000), Exact},
		{"float fraction", 4000.5, ptr(4000), Estimate},
		{"int", 17, ptr(17), Exact},
		{"int64", int64(99), ptr(99), Exact},
		{"json number", json.Number("1234"), ptr(1234), Exact},
		{"string", "about 50", ptr(50), Estimate},
		{"nil", nil, nil, Unknown},
		{"negative", -5, nil, Unknown},
		{"bool", true, nil, Unknown},
		{"float at int64 limit", float64(math.MaxInt64), nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FromValue(tt.input)
			if (res.Value == nil) != (tt.want == nil) {
				t.Fatalf("FromValue(%v) value = %v, want %v", tt.input, res.Value, tt.want)
			}
			if tt.want != nil && *res.Value != *tt.want {
				t.Errorf("FromValue(%v) = %d, want %d", tt.input, *res.Value, *tt.want)
			}
			if res.Confidence != tt.conf {
				t.Errorf("FromValue(%v) confidence = %q, want %q", tt.input, res.Confidence, tt.conf)
			}
		})
	}
}

func ptr(n int64) *int64 { return &n }
