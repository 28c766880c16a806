package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

// stringify renders a decoded config value the way setting.Parse reads it.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

// Overrides parses name=value pairs from the command line.
func Overrides(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("setting %q is not name=value", p)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

// Apply configures p from values inside one settings transaction. Every
// value is parsed against its definition. EndSettings always runs so the
// plugin is left ready or not ready.
func Apply(p plugin.Plugin, values ...map[string]any) error {
	merged := map[string]any{}
	for _, m := range values {
		for k, v := range m {
			merged[k] = v
		}
	}
	names := make([]string, 0, len(merged))
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	var errs []error
	p.BeginSettings()
	for _, name := range names {
		def, err := setting.Find(p.Settings(), name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v, err := setting.Parse(def, stringify(merged[name]))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.SetSetting(name, v); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, p.EndSettings())
	return errors.Join(errs...)
}
