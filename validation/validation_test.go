package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/kbukum/reactive/errors"
)

func TestValidatorRequired(t *testing.T) {
	v := New()
	v.Required("name", "engine")
	if v.HasErrors() {
		t.Error("expected no errors for valid input")
	}

	v2 := New()
	v2.Required("name", "   ")
	if !v2.HasErrors() {
		t.Error("expected error for whitespace-only required field")
	}
}

func TestValidatorChecks(t *testing.T) {
	tests := []struct {
		name    string
		check   func(v *Validator)
		wantErr bool
	}{
		{"min ok", func(v *Validator) { v.Min("workers", 4, 1) }, false},
		{"min fails", func(v *Validator) { v.Min("workers", 0, 1) }, true},
		{"positive ok", func(v *Validator) { v.Positive("timeout", time.Second) }, false},
		{"positive fails", func(v *Validator) { v.Positive("timeout", 0) }, true},
		{"one of ok", func(v *Validator) { v.OneOf("env", "staging", []string{"development", "staging"}) }, false},
		{"one of empty is skipped", func(v *Validator) { v.OneOf("env", "", []string{"development"}) }, false},
		{"one of fails", func(v *Validator) { v.OneOf("env", "qa", []string{"development", "staging"}) }, true},
		{"custom ok", func(v *Validator) { v.Custom(true, "x", "bad") }, false},
		{"custom fails", func(v *Validator) { v.Custom(false, "x", "bad") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			tt.check(v)
			if v.HasErrors() != tt.wantErr {
				t.Errorf("HasErrors() = %v, want %v (%v)", v.HasErrors(), tt.wantErr, v.Errors())
			}
		})
	}
}

func TestValidatorValidate(t *testing.T) {
	if err := New().Validate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	v := New().Required("name", "").Min("scheduler.workers", -1, 0)
	err := v.Validate()
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
	if !strings.Contains(err.Error(), "name: is required") || !strings.Contains(err.Error(), "scheduler.workers") {
		t.Errorf("message should name both fields: %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 2 {
		t.Errorf("expected 2 field errors in details, got %v", appErr.Details["fields"])
	}
}

type schedulerSection struct {
	Workers int    `mapstructure:"workers" validate:"gte=0"`
	Name    string `mapstructure:"name" validate:"required"`
}

type sample struct {
	Mode      string           `mapstructure:"mode" validate:"oneof=fast slow"`
	Scheduler schedulerSection `mapstructure:"scheduler"`
	Rate      float64          `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

func TestValidate_StructTags(t *testing.T) {
	valid := sample{Mode: "fast", Scheduler: schedulerSection{Workers: 2, Name: "io"}, Rate: 0.5}
	if err := Validate(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invalid := sample{Mode: "warp", Scheduler: schedulerSection{Workers: -1}, Rate: 2}
	err := Validate(invalid)
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
	for _, want := range []string{
		"mode: must be one of: fast slow",
		"scheduler.workers: must be at least 0",
		"scheduler.name: is required",
		"sample_rate: must be at most 1",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidatorMerge(t *testing.T) {
	structErr := Validate(sample{Mode: "fast", Scheduler: schedulerSection{Name: "io"}, Rate: 3})
	v := New().Merge("root", structErr).Merge("logging", errors.InvalidConfig("plain")).Merge("none", nil)

	fields := v.Errors()
	if len(fields) != 2 {
		t.Fatalf("expected 2 errors, got %v", fields)
	}
	if fields[0].Field != "sample_rate" {
		t.Errorf("struct errors should keep their keys, got %q", fields[0].Field)
	}
	if fields[1].Field != "logging" {
		t.Errorf("plain errors should be recorded under the given field, got %q", fields[1].Field)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Workers":     "workers",
		"SampleRate":  "sample_rate",
		"MaxInFlight": "max_in_flight",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
