package storage

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is one backend block, e.g.
//
//	type: memcached
//	options: --SERVER=cache1 --SERVER=cache2
//	expire: 60
type Config map[string]any

// LoadConfig reads a backend block from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse storage config: %w", err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

func (c Config) Type() string {
	return c.StringValue("type", "")
}

func (c Config) StringValue(key, def string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

func (c Config) IntValue(key string, def int) (int, error) {
	switch v := c[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("storage config: %s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("storage config: %s must be an integer, got %q", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("storage config: %s must be an integer, got %T", key, v)
	}
}

func (c Config) BoolValue(key string, def bool) (bool, error) {
	switch v := c[key].(type) {
	case nil:
		return def, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("storage config: %s must be a boolean, got %q", key, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("storage config: %s must be a boolean, got %T", key, v)
	}
}

// Sub returns the nested block under key.
func (c Config) Sub(key string) (Config, bool) {
	return asConfig(c[key])
}

// Subs returns the nested blocks of a mapping under key.
func (c Config) Subs(key string) (map[string]Config, error) {
	raw, ok := asConfig(c[key])
	if !ok {
		if c[key] == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("storage config: %s must be a mapping", key)
	}
	out := make(map[string]Config, len(raw))
	for name, v := range raw {
		sub, ok := asConfig(v)
		if !ok {
			return nil, fmt.Errorf("storage config: %s.%s must be a mapping", key, name)
		}
		out[name] = sub
	}
	return out, nil
}

// List returns the sequence of nested blocks under key.
func (c Config) List(key string) ([]Config, error) {
	if c[key] == nil {
		return nil, nil
	}
	raw, ok := c[key].([]any)
	if !ok {
		return nil, fmt.Errorf("storage config: %s must be a list", key)
	}
	out := make([]Config, 0, len(raw))
	for i, v := range raw {
		sub, ok := asConfig(v)
		if !ok {
			return nil, fmt.Errorf("storage config: %s[%d] must be a mapping", key, i)
		}
		out = append(out, sub)
	}
	return out, nil
}

func asConfig(v any) (Config, bool) {
	switch m := v.(type) {
	case Config:
		return m, true
	case map[string]any:
		return Config(m), true
	default:
		return nil, false
	}
}
