package config

import (
	"fmt"
	"io"
	"strings"

	"modernc.org/libqbe"
)

type Feature int

const (
	FeatCommon Feature = iota
	FeatPIC
	FeatDollarIdents
	FeatCount
)

type Warning int

const (
	WarnExtraTokens Warning = iota
	WarnUnknownPragmas
	WarnMacroRedefined
	WarnPedantic
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	StdName    string

	Target         string
	TargetArch     string
	WordSize       int
	StackAlignment int

	// Include directories are searched in this order, with the compiler's
	// builtin headers between IncludePaths and SystemIncludePaths.
	IncludePaths       []string
	SystemIncludePaths []string
	IdirAfter          []string

	Verbose bool
	Log     io.Writer
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		StdName:        "c11",
		Target:         "amd64_sysv",
		TargetArch:     "amd64",
		WordSize:       8,
		StackAlignment: 16,
		Log:            io.Discard,
	}
	cfg.SystemIncludePaths = []string{"/usr/local/include", "/usr/include/x86_64-linux-gnu", "/usr/include"}

	features := map[Feature]Info{
		FeatCommon:       {"common", true, "Emit uninitialized globals as common symbols."},
		FeatPIC:          {"pic", false, "Generate position-independent code."},
		FeatDollarIdents: {"dollars-in-identifiers", true, "Allow '$' in identifiers."},
	}

	warnings := map[Warning]Info{
		WarnExtraTokens:    {"extra-tokens", true, "Warn about extra tokens at the end of a preprocessor directive."},
		WarnUnknownPragmas: {"unknown-pragmas", false, "Warn about #pragma directives that are ignored."},
		WarnMacroRedefined: {"macro-redefined", false, "Warn when a macro is redefined with a different body."},
		WarnPedantic:       {"pedantic", false, "Issue all warnings demanded by strict ISO C."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

// Infof writes a progress line to Log when verbose output is on.
func (c *Config) Infof(format string, args ...any) {
	if c.Verbose && c.Log != nil {
		fmt.Fprintf(c.Log, "chibicc: info: "+format+"\n", args...)
	}
}

// SetTarget selects the target ABI. An empty target means the host.
func (c *Config) SetTarget(goos, goarch, target string) error {
	if target == "" {
		target = libqbe.DefaultTarget(goos, goarch)
		c.Infof("no target specified, defaulting to host target '%s'", target)
	}
	c.TargetArch = goarch

	switch target {
	case "amd64_sysv", "x86_64", "x86_64-linux-gnu":
		c.Target, c.WordSize, c.StackAlignment = "amd64_sysv", 8, 16
		return nil
	default:
		return fmt.Errorf("unsupported target '%s': only amd64_sysv (x86-64 System V) code generation is implemented", target)
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyStd records the language standard. Every accepted dialect compiles
// the same language; strict ISO modes turn on pedantic warnings.
func (c *Config) ApplyStd(stdName string) error {
	switch stdName {
	case "c11", "gnu11", "c99", "gnu99", "c17", "gnu17", "c18":
	default:
		return fmt.Errorf("unsupported standard '%s'. Supported: c99, c11, c17 and their gnu variants", stdName)
	}
	c.StdName = stdName
	if strings.HasPrefix(stdName, "c") {
		c.SetWarning(WarnPedantic, true)
	}
	return nil
}

// ApplyFlag applies a -W, -Wno-, -f or -fno- style flag. Unknown names are
// reported to the caller.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")

	var name string
	var isWarning bool
	switch {
	case strings.HasPrefix(trimmed, "W"):
		name, isWarning = trimmed[1:], true
	case strings.HasPrefix(trimmed, "f"):
		name = trimmed[1:]
	default:
		return fmt.Errorf("unrecognized flag '%s'", flag)
	}
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if isWarning && name == "all" {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return nil
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return nil
		}
		return fmt.Errorf("unknown warning option '%s'", flag)
	}
	if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
		return nil
	}
	// GCC spells the feature -fPIC as well.
	if strings.EqualFold(name, "pic") || strings.EqualFold(name, "pie") {
		c.SetFeature(FeatPIC, enable)
		return nil
	}
	return fmt.Errorf("unknown feature option '%s'", flag)
}
