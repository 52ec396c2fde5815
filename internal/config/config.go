// Package config loads the supervisor's YAML configuration into validated
// process.Spec values.
package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/kestrux/supervisor/internal/process"
)

// SpecSet is the decoded, validated result of loading a configuration file.
type SpecSet struct {
	Programs []process.Spec

	// HistoryDSN, when non-empty, is passed to history/factory.NewSinkFromDSN
	// to build the supervisor's audit-trail sink.
	HistoryDSN string

	// MetricsListen is the optional address promhttp should listen on.
	MetricsListen string
}

// programEntry is the raw per-program map decoded from YAML before
// alias resolution and validation.
type programEntry map[string]any

// rawConfig mirrors the top-level YAML shape: a map of program name to its
// settings, plus optional top-level history and metrics blocks.
type rawConfig struct {
	Programs map[string]programEntry `mapstructure:"programs"`
	History  struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"history"`
	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`
}

// LoadConfig reads and validates the YAML file at path, producing a fully
// normalized SpecSet. Re-reading the same file is idempotent: identical
// YAML always decodes to structurally identical specs.
func LoadConfig(path string) (*SpecSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	// A program whose settings block is empty ("name: {}") does not survive
	// Unmarshal; register it by name so it still reaches validation.
	if raw.Programs == nil {
		raw.Programs = make(map[string]programEntry)
	}
	for name := range v.GetStringMap("programs") {
		if _, ok := raw.Programs[name]; !ok {
			raw.Programs[name] = programEntry{}
		}
	}

	names := make([]string, 0, len(raw.Programs))
	for name := range raw.Programs {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]process.Spec, 0, len(names))
	for _, name := range names {
		entry := raw.Programs[name]
		resolveCommandAlias(entry)

		spec := process.Spec{MaxRestarts: process.DefaultMaxRestarts}
		if err := decodeEntry(entry, &spec); err != nil {
			return nil, &process.ConfigError{Field: name, Reason: fmt.Sprintf("decode: %v", err)}
		}
		spec.Name = name
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return &SpecSet{
		Programs:      specs,
		HistoryDSN:    strings.TrimSpace(raw.History.DSN),
		MetricsListen: strings.TrimSpace(raw.Metrics.Listen),
	}, nil
}

// resolveCommandAlias lets "cmd" stand in for "command". command wins if
// both are present.
func resolveCommandAlias(entry programEntry) {
	if _, hasCommand := entry["command"]; hasCommand {
		delete(entry, "cmd")
		return
	}
	if cmd, ok := entry["cmd"]; ok {
		entry["command"] = cmd
		delete(entry, "cmd")
	}
}

func decodeEntry(entry programEntry, out *process.Spec) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       secondsToDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(entry))
}

// secondsToDurationHookFunc decodes success_timeout/stop_timeout as plain
// integer seconds, the natural unit for a YAML config field, while still
// accepting a Go duration string (e.g. "10s") for anyone who writes one.
func secondsToDurationHookFunc() mapstructure.DecodeHookFunc {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			return time.ParseDuration(data.(string))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Convert(reflect.TypeOf(int64(0))).Int()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}
