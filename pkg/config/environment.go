package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment is the deployment tier the process runs in.
type Environment string

// Environment constants.
const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// LoadEnvironment reads ENVIRONMENT, defaulting to development.
func LoadEnvironment() (Environment, error) {
	raw := strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	if raw == "" {
		return EnvDevelopment, nil
	}
	env := Environment(raw)
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return env, nil
	default:
		return "", fmt.Errorf("invalid ENVIRONMENT %q (want development|staging|production)", raw)
	}
}

// ProductionLike reports whether production hardening (auth, strong secrets,
// pooled DB) must be enforced.
func (e Environment) ProductionLike() bool {
	return e == EnvStaging || e == EnvProduction
}

// Secret resolves a secret from KEY or, preferentially, a file mounted at the
// path named by KEY_FILE. Returns empty when neither is set.
func Secret(key string) (string, error) {
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s_FILE: %w", key, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(key), nil
}

// RequireSecret resolves a secret and fails when it is empty.
func RequireSecret(key string) (string, error) {
	val, err := Secret(key)
	if err != nil {
		return "", err
	}
	if val == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, key)
	}
	return val, nil
}
