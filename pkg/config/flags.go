package config

import (
	"sort"

	"github.com/xplshn/chibicc/pkg/cli"
)

// SetupFlagGroups registers the -f and -W families on fs. Each occurrence
// is applied to c as soon as it is parsed, so later flags win.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) {
	var features, warnings []cli.FlagGroupEntry
	for _, info := range c.Features {
		features = append(features, cli.FlagGroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	for _, info := range c.Warnings {
		warnings = append(warnings, cli.FlagGroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	warnings = append(warnings, cli.FlagGroupEntry{Name: "all", Usage: "Enable every warning except pedantic ones."})
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Name < warnings[j].Name })

	fs.AddFlagGroup("Feature Flags", "f", "feature", "Available Features:", features, func(v string) error {
		return c.ApplyFlag("-f" + v)
	})
	fs.AddFlagGroup("Warning Flags", "W", "warning", "Available Warnings:", warnings, func(v string) error {
		return c.ApplyFlag("-W" + v)
	})
}
