package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sensiblebit/pemfile"
	"github.com/spf13/pflag"
)

// kindsValue is a repeatable flag of item kind names.
type kindsValue struct {
	kinds []pemfile.Kind
}

var _ pflag.Value = (*kindsValue)(nil)

func (v *kindsValue) String() string {
	names := make([]string, len(v.kinds))
	for i, k := range v.kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}

func (v *kindsValue) Set(s string) error {
	for name := range strings.SplitSeq(s, ",") {
		k, err := pemfile.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		if !slices.Contains(v.kinds, k) {
			v.kinds = append(v.kinds, k)
		}
	}
	return nil
}

func (v *kindsValue) Type() string { return "kinds" }

// matches reports whether item passes the flag. No kinds means everything
// passes.
func (v *kindsValue) matches(item pemfile.Item) bool {
	return len(v.kinds) == 0 || slices.Contains(v.kinds, item.Kind)
}

// addKindFlag registers --kind on fs.
func addKindFlag(fs *pflag.FlagSet, v *kindsValue, usage string) {
	fs.VarP(v, "kind", "k", usage)
}

// addFormatFlag registers --format on fs with the allowed values listed in
// its usage.
func addFormatFlag(fs *pflag.FlagSet, target *string, def string, choices ...string) {
	fs.StringVarP(target, "format", "f", def, "Output format: "+strings.Join(choices, ", "))
}

// addOutFlag registers --out on fs.
func addOutFlag(fs *pflag.FlagSet, target *string, usage string) {
	fs.StringVarP(target, "out", "o", "", usage)
}

// checkChoice returns an error unless value is one of choices.
func checkChoice(flag, value string, choices []string) error {
	if slices.Contains(choices, value) {
		return nil
	}
	return fmt.Errorf("invalid --%s %q (use %s)", flag, value, strings.Join(choices, ", "))
}
