// Package config models the manager's dynamic configuration surface as an
// explicit, typed Settings record plus an open-ended Extras map for
// executor-specific keyword passthrough (see design note in DESIGN.md).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExecutorSettings groups the FLOW_EXECUTOR.* keys.
type ExecutorSettings struct {
	Name           string            `yaml:"name"`
	DataDir        string            `yaml:"data_dir"`
	RuntimeDir     string            `yaml:"runtime_dir"`
	DataDirMode    os.FileMode       `yaml:"data_dir_mode"`
	RuntimeDirMode os.FileMode       `yaml:"runtime_dir_mode"`
	Python         string            `yaml:"python"`
	SetEnv         map[string]string `yaml:"set_env"`
	// PackageDir, if set, is copied into every task's runtime directory
	// before it is chmod'ed (the executor's package tree).
	PackageDir string `yaml:"package_dir"`
}

// Settings is the enumerated, typed configuration surface the manager and
// its executors read from.
type Settings struct {
	Executor                 ExecutorSettings `yaml:"executor"`
	ExpressionEngines        []string         `yaml:"expression_engines"`
	ExecutionEngines         []string         `yaml:"execution_engines"`
	ManagerKeepData          bool             `yaml:"manager_keep_data"`
	ManagerDisableCtypeCache bool             `yaml:"manager_disable_ctype_cache"`
	HostURL                  string           `yaml:"host_url"`

	// Extras carries anything from the FLOW_/RESOLWE_/CELERY_ namespace
	// that isn't one of the enumerated options above, verbatim.
	Extras map[string]any `yaml:"extras"`
}

// Default returns the baseline configuration used when nothing is
// explicitly configured.
func Default() Settings {
	return Settings{
		Executor: ExecutorSettings{
			Name:           "local",
			DataDir:        "./data",
			RuntimeDir:     "./runtime",
			DataDirMode:    0o755,
			RuntimeDirMode: 0o755,
			Python:         "/usr/bin/env python3",
			SetEnv:         map[string]string{},
		},
		ExpressionEngines: []string{"template"},
		ExecutionEngines:  []string{"bash"},
		HostURL:           "localhost",
		Extras:            map[string]any{},
	}
}

// Load reads YAML configuration from path (if non-empty) over the
// defaults, then overlays environment variables with the FLOW_, RESOLWE_
// and CELERY_ prefixes into Extras, mirroring _marshal_settings().
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if s.Extras == nil {
		s.Extras = map[string]any{}
	}
	for key, value := range marshalEnvironment() {
		s.Extras[key] = value
	}

	return s, nil
}

// marshalEnvironment serializes every environment variable whose name
// starts with FLOW_, RESOLWE_ or CELERY_ verbatim, the Go equivalent of
// _marshal_settings() walking dir(django.conf.settings).
func marshalEnvironment() map[string]any {
	out := make(map[string]any)
	for _, prefix := range []string{"FLOW_", "RESOLWE_", "CELERY_"} {
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || !strings.HasPrefix(k, prefix) {
				continue
			}
			out[k] = coerceEnvValue(v)
		}
	}
	return out
}

func coerceEnvValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	return v
}

// ToMap flattens Settings into the map[string]any representation the rest
// of the manager composes overrides against.
func (s Settings) ToMap() map[string]any {
	m := map[string]any{
		"FLOW_EXECUTOR": map[string]any{
			"NAME":            s.Executor.Name,
			"DATA_DIR":        s.Executor.DataDir,
			"RUNTIME_DIR":     s.Executor.RuntimeDir,
			"DATA_DIR_MODE":   s.Executor.DataDirMode,
			"RUNTIME_DIR_MODE": s.Executor.RuntimeDirMode,
			"PYTHON":          s.Executor.Python,
			"SET_ENV":         s.Executor.SetEnv,
			"PACKAGE_DIR":     s.Executor.PackageDir,
		},
		"FLOW_EXPRESSION_ENGINES":          s.ExpressionEngines,
		"FLOW_EXECUTION_ENGINES":           s.ExecutionEngines,
		"FLOW_MANAGER_KEEP_DATA":           s.ManagerKeepData,
		"FLOW_MANAGER_DISABLE_CTYPE_CACHE": s.ManagerDisableCtypeCache,
		"RESOLWE_HOST_URL":                 s.HostURL,
	}
	for k, v := range s.Extras {
		m[k] = v
	}
	return m
}

// Merge overlays each map in overrides on top of base, later maps taking
// precedence for any key they set; base is not modified. Used to compose host config,
// the shared override map, and per-message overrides in increasing
// precedence order. A nested map[string]any value (FLOW_EXECUTOR's
// sub-keys) is merged key-by-key rather than replaced wholesale, so a
// caller overriding just DATA_DIR does not have to restate PYTHON,
// RUNTIME_DIR and the rest.
func Merge(base map[string]any, overrides ...map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, override := range overrides {
		for k, v := range override {
			if existing, ok := out[k].(map[string]any); ok {
				if incoming, ok := v.(map[string]any); ok {
					out[k] = Merge(existing, incoming)
					continue
				}
			}
			out[k] = v
		}
	}
	return out
}

// knownTopLevelKeys are the ToMap keys FromMap reads explicitly; anything
// else round-trips through Extras.
var knownTopLevelKeys = map[string]bool{
	"FLOW_EXECUTOR":                    true,
	"FLOW_EXPRESSION_ENGINES":          true,
	"FLOW_EXECUTION_ENGINES":           true,
	"FLOW_MANAGER_KEEP_DATA":           true,
	"FLOW_MANAGER_DISABLE_CTYPE_CACHE": true,
	"RESOLWE_HOST_URL":                 true,
}

// FromMap reconstructs a Settings from the flattened representation
// ToMap produces, tolerating missing or mistyped keys (e.g. after a
// round trip through a JSON-encoded control-bus message, where numbers
// surface as float64) by falling back to the zero value. It is the
// inverse of ToMap, used to turn a composed host/override/per-message
// map back into a typed Settings for one scan/build pass.
func FromMap(m map[string]any) Settings {
	s := Settings{Extras: map[string]any{}}

	if exec, ok := m["FLOW_EXECUTOR"].(map[string]any); ok {
		s.Executor = ExecutorSettings{
			Name:           stringField(exec, "NAME"),
			DataDir:        stringField(exec, "DATA_DIR"),
			RuntimeDir:     stringField(exec, "RUNTIME_DIR"),
			DataDirMode:    modeField(exec, "DATA_DIR_MODE"),
			RuntimeDirMode: modeField(exec, "RUNTIME_DIR_MODE"),
			Python:         stringField(exec, "PYTHON"),
			SetEnv:         stringMapField(exec, "SET_ENV"),
			PackageDir:     stringField(exec, "PACKAGE_DIR"),
		}
	}

	s.ExpressionEngines = stringSliceField(m, "FLOW_EXPRESSION_ENGINES")
	s.ExecutionEngines = stringSliceField(m, "FLOW_EXECUTION_ENGINES")
	s.ManagerKeepData, _ = m["FLOW_MANAGER_KEEP_DATA"].(bool)
	s.ManagerDisableCtypeCache, _ = m["FLOW_MANAGER_DISABLE_CTYPE_CACHE"].(bool)
	s.HostURL = stringField(m, "RESOLWE_HOST_URL")

	for k, v := range m {
		if !knownTopLevelKeys[k] {
			s.Extras[k] = v
		}
	}
	return s
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func modeField(m map[string]any, key string) os.FileMode {
	switch v := m[key].(type) {
	case os.FileMode:
		return v
	case float64:
		return os.FileMode(v)
	case int:
		return os.FileMode(v)
	case int64:
		return os.FileMode(v)
	default:
		return 0
	}
}

func stringSliceField(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringMapField(m map[string]any, key string) map[string]string {
	switch v := m[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, e := range v {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return map[string]string{}
	}
}
