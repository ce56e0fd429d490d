package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

type IndentState struct {
	levels   []uint8
	baseUnit uint8
}

func NewIndentState() *IndentState {
	return &IndentState{levels: []uint8{0}, baseUnit: 4}
}

func (is *IndentState) Push() {
	is.levels = append(is.levels, is.levels[len(is.levels)-1]+1)
}

func (is *IndentState) Pop() {
	if len(is.levels) > 1 {
		is.levels = is.levels[:len(is.levels)-1]
	}
}

func (is *IndentState) Current() string { return is.AtLevel(int(is.levels[len(is.levels)-1])) }

func (is *IndentState) AtLevel(level int) string {
	return strings.Repeat(" ", int(is.baseUnit)*level)
}

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

// funcValue hands every occurrence to a callback, so options that must be
// applied in command-line order (-D and -U, -f and -fno-) keep that order.
type funcValue struct {
	fn   func(string) error
	last string
}

func (v *funcValue) Set(s string) error { v.last = s; return v.fn(s) }
func (v *funcValue) String() string     { return v.last }
func (v *funcValue) Get() any           { return v.last }

// Flag is a single-dash option in the style of a C compiler driver. Name is
// spelled without the dash; a flag that takes a value accepts it as the next
// argument, after '=', or glued to the name (-Idir, -DNAME=1).
type Flag struct {
	Name         string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
	Hidden       bool
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(*boolValue)
	return ok
}

// FlagGroup is a family of -<prefix><name> and -<prefix>no-<name> switches
// such as -fcommon or -Wno-pedantic.
type FlagGroup struct {
	Name                 string
	Prefix               string
	GroupType            string
	AvailableFlagsHeader string
	Flags                []FlagGroupEntry
}

type FlagGroupEntry struct {
	Name    string
	Usage   string
	Enabled bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	flagGroups []FlagGroup
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{name: name, flags: make(map[string]*Flag)}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) List(p *[]string, name string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, usage, "", expectedType)
}

// Func registers a flag whose every occurrence calls fn with its value.
func (f *FlagSet) Func(name, usage, expectedType string, fn func(string) error) {
	f.Var(&funcValue{fn: fn}, name, usage, "", expectedType)
}

// AddFlagGroup registers the group prefix as a flag and passes every
// -<prefix>... argument to apply with the prefix stripped.
func (f *FlagSet) AddFlagGroup(name, prefix, groupType, availableFlagsHeader string, entries []FlagGroupEntry, apply func(string) error) {
	f.Func(prefix, "", groupType, apply)
	f.flags[prefix].Hidden = true
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Prefix:               prefix,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
		Flags:                entries,
	})
}

func (f *FlagSet) Var(value Value, name, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	f.flags[name] = &Flag{Name: name, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
}

// Parse processes arguments. Anything not starting with '-', and a lone
// "-" meaning standard input, is collected as a positional argument.
func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}

		name := strings.TrimPrefix(arg[1:], "-")
		if flag, ok := f.flags[name]; ok {
			if flag.isBool() {
				if err := flag.Value.Set(""); err != nil {
					return err
				}
				continue
			}
			if i+1 >= len(arguments) {
				return fmt.Errorf("missing argument to '%s'", arg)
			}
			i++
			if err := flag.Value.Set(arguments[i]); err != nil {
				return err
			}
			continue
		}

		if n, v, ok := strings.Cut(name, "="); ok {
			if flag, ok := f.flags[n]; ok {
				if err := flag.Value.Set(v); err != nil {
					return err
				}
				continue
			}
		}

		flag := f.longestPrefix(name)
		if flag == nil {
			return fmt.Errorf("unknown argument: '%s'", arg)
		}
		if err := flag.Value.Set(name[len(flag.Name):]); err != nil {
			return err
		}
	}
	return nil
}

// longestPrefix finds the value-taking flag whose name is the longest
// prefix of s, so that -MFdeps.d selects MF rather than M.
func (f *FlagSet) longestPrefix(s string) *Flag {
	var best *Flag
	for name, flag := range f.flags {
		if flag.isBool() || !strings.HasPrefix(s, name) || len(s) == len(name) {
			continue
		}
		if best == nil || len(name) > len(best.Name) {
			best = flag
		}
	}
	return best
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error

	Stdout io.Writer
	Stderr io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(a.Stderr, "%s: %v\n", a.Name, err)
		a.generateUsagePage(a.Stderr)
		return err
	}
	if help {
		a.generateHelpPage(a.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) generateUsagePage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	fmt.Fprintf(&sb, "Run '%s --help' for all available options and flags.\n", a.Name)
	fmt.Fprint(w, sb.String())
}

func (a *App) generateHelpPage(w io.Writer) {
	var sb strings.Builder
	termWidth := getTerminalWidth(w)
	indent := NewIndentState()

	optionFlags := a.getOptionFlags()
	leftWidth, usageWidth := a.columnWidths(optionFlags)

	years := strconv.Itoa(time.Now().Year())
	if a.Since != 0 && a.Since < time.Now().Year() {
		years = fmt.Sprintf("%d-%s", a.Since, years)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%sCopyright (c) %s: %s\n", indent.AtLevel(1), years, strings.Join(a.Authors, ", ")+" and contributors")
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent.AtLevel(1), a.Repository)
	}

	if a.Synopsis != "" {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%sSynopsis\n", indent.AtLevel(1))
		fmt.Fprintf(&sb, "%s%s %s\n", indent.AtLevel(2), a.Name, a.Synopsis)
	}

	if a.Description != "" {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%sDescription\n", indent.AtLevel(1))
		for _, line := range wrapText(a.Description, termWidth-len(indent.AtLevel(2))) {
			fmt.Fprintf(&sb, "%s%s\n", indent.AtLevel(2), line)
		}
	}

	if len(optionFlags) > 0 {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%sOptions\n", indent.AtLevel(1))
		for _, flag := range optionFlags {
			rightPart := ""
			if flag.DefValue != "" && !flag.isBool() {
				rightPart = fmt.Sprintf("|%s|", flag.DefValue)
			}
			formatEntry(&sb, indent, termWidth, formatFlagString(flag), flag.Usage, rightPart, leftWidth, usageWidth)
		}
	}

	groups := make([]FlagGroup, len(a.FlagSet.flagGroups))
	copy(groups, a.FlagSet.flagGroups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, group := range groups {
		formatFlagGroup(&sb, group, indent, termWidth, leftWidth, usageWidth)
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) getOptionFlags() []*Flag {
	var optionFlags []*Flag
	for _, flag := range a.FlagSet.flags {
		if !flag.Hidden {
			optionFlags = append(optionFlags, flag)
		}
	}
	sort.Slice(optionFlags, func(i, j int) bool {
		return strings.ToLower(optionFlags[i].Name) < strings.ToLower(optionFlags[j].Name)
	})
	return optionFlags
}

func (a *App) columnWidths(optionFlags []*Flag) (left, usage int) {
	for _, flag := range optionFlags {
		left = max(left, len(formatFlagString(flag)))
		usage = max(usage, len(flag.Usage))
	}
	for _, group := range a.FlagSet.flagGroups {
		left = max(left, len(fmt.Sprintf("-%sno-<%s>", group.Prefix, group.GroupType)))
		for _, entry := range group.Flags {
			left = max(left, len(entry.Name))
			usage = max(usage, len(entry.Usage))
		}
	}
	return left, usage
}

func formatFlagString(flag *Flag) string {
	dashes := "-"
	if strings.Contains(flag.Name, "-") || flag.Name == "help" {
		dashes = "--"
	}
	if flag.isBool() || flag.ExpectedType == "" {
		return dashes + flag.Name
	}
	if len(flag.Name) <= 2 {
		return fmt.Sprintf("-%s <%s>", flag.Name, flag.ExpectedType)
	}
	return fmt.Sprintf("%s%s=<%s>", dashes, flag.Name, flag.ExpectedType)
}

func formatEntry(sb *strings.Builder, indent *IndentState, termWidth int, leftPart, usagePart, rightPart string, leftWidth, usageWidth int) {
	indentStr := indent.AtLevel(2)

	maxUsageWidth := termWidth - (len(indentStr) + leftWidth + 1 + 2 + len(rightPart))
	if maxUsageWidth < 10 {
		maxUsageWidth = 10
	}
	usageLines := wrapText(usagePart, maxUsageWidth)
	first := ""
	if len(usageLines) > 0 {
		first = usageLines[0]
	}

	if rightPart != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indentStr, leftWidth, leftPart, min(usageWidth, maxUsageWidth), first, rightPart)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indentStr, leftWidth, leftPart, first)
	}

	wrappedIndent := strings.Repeat(" ", leftWidth+1)
	for _, line := range usageLines[min(1, len(usageLines)):] {
		fmt.Fprintf(sb, "%s%s%s\n", indentStr, wrappedIndent, line)
	}
}

func formatFlagGroup(sb *strings.Builder, group FlagGroup, indent *IndentState, termWidth, leftWidth, usageWidth int) {
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%s%s\n", indent.AtLevel(1), group.Name)

	fmt.Fprintf(sb, "%s%-*s Enable a specific %s\n", indent.AtLevel(2), leftWidth, fmt.Sprintf("-%s<%s>", group.Prefix, group.GroupType), group.GroupType)
	fmt.Fprintf(sb, "%s%-*s Disable a specific %s\n", indent.AtLevel(2), leftWidth, fmt.Sprintf("-%sno-<%s>", group.Prefix, group.GroupType), group.GroupType)

	if group.AvailableFlagsHeader != "" {
		fmt.Fprintf(sb, "%s%s\n", indent.AtLevel(1), group.AvailableFlagsHeader)
	}

	entries := make([]FlagGroupEntry, len(group.Flags))
	copy(entries, group.Flags)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, entry := range entries {
		rightPart := "|-|"
		if entry.Enabled {
			rightPart = "|x|"
		}
		formatEntry(sb, indent, termWidth, entry.Name, entry.Usage, rightPart, leftWidth, usageWidth)
	}
}

func getTerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
