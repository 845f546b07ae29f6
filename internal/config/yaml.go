package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// Redacted returns a copy with every secret replaced, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Database.Password)
	mask(&out.Database.DSN)
	mask(&out.Database.TLS.CABase64)
	mask(&out.Auth.Pepper)
	mask(&out.Auth.HMACSecret)
	mask(&out.Auth.JWT.Secret)
	mask(&out.Edge.HMACSecret)
	mask(&out.Edge.JWTVerifySecret)
	mask(&out.Edge.RateLimit.RedisPassword)
	return &out
}

// YAML renders the configuration. Durations render as Go duration strings.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration to path. Existing files are
// kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Default().YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
