package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyFlag(t *testing.T) {
	tests := []struct {
		flags    []string
		features map[Feature]bool
		warnings map[Warning]bool
	}{
		{
			flags:    []string{"-fno-common", "-fpic"},
			features: map[Feature]bool{FeatCommon: false, FeatPIC: true, FeatDollarIdents: true},
		},
		{
			flags:    []string{"-fPIC", "-fno-dollars-in-identifiers"},
			features: map[Feature]bool{FeatCommon: true, FeatPIC: true, FeatDollarIdents: false},
		},
		{
			flags:    []string{"-Wall"},
			warnings: map[Warning]bool{WarnExtraTokens: true, WarnUnknownPragmas: true, WarnMacroRedefined: true, WarnPedantic: false},
		},
		{
			flags:    []string{"-Wall", "-Wno-extra-tokens"},
			warnings: map[Warning]bool{WarnExtraTokens: false, WarnUnknownPragmas: true, WarnMacroRedefined: true, WarnPedantic: false},
		},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		for _, f := range tt.flags {
			if err := cfg.ApplyFlag(f); err != nil {
				t.Fatalf("ApplyFlag(%q): %v", f, err)
			}
		}
		if tt.features != nil {
			got := map[Feature]bool{}
			for ft := Feature(0); ft < FeatCount; ft++ {
				got[ft] = cfg.IsFeatureEnabled(ft)
			}
			if diff := cmp.Diff(tt.features, got); diff != "" {
				t.Errorf("%v: features mismatch (-want +got):\n%s", tt.flags, diff)
			}
		}
		if tt.warnings != nil {
			got := map[Warning]bool{}
			for wt := Warning(0); wt < WarnCount; wt++ {
				got[wt] = cfg.IsWarningEnabled(wt)
			}
			if diff := cmp.Diff(tt.warnings, got); diff != "" {
				t.Errorf("%v: warnings mismatch (-want +got):\n%s", tt.flags, diff)
			}
		}
	}
}

func TestApplyFlagRejectsUnknown(t *testing.T) {
	cfg := NewConfig()
	for _, f := range []string{"-Wbogus", "-fbogus", "-x"} {
		if err := cfg.ApplyFlag(f); err == nil {
			t.Errorf("ApplyFlag(%q) succeeded", f)
		}
	}
}

func TestSetTarget(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.SetTarget("linux", "amd64", "amd64_sysv"); err != nil {
		t.Fatal(err)
	}
	if cfg.WordSize != 8 || cfg.StackAlignment != 16 {
		t.Errorf("got word size %d alignment %d", cfg.WordSize, cfg.StackAlignment)
	}
	if err := cfg.SetTarget("linux", "arm64", "arm64"); err == nil {
		t.Error("arm64 target accepted")
	}
}
