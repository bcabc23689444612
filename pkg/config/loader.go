package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v2"
)

// ExpandEnv expands ${VAR} and $VAR references in YAML content before
// parsing, so secrets like llm_api_key and tracker_webhook_secret are never
// committed to the YAML file itself (SPEC_FULL §2.1, grounded on
// codeready-toolchain-tarsy/pkg/config/envexpand.go). Missing variables
// expand to the empty string; Validate does not check llm_api_key or
// tracker_webhook_secret, so a missing variable for either leaves it empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}

// Load loads the .env file at envPath when envPath is non-empty (a missing
// file is ignored; godotenv, following tarsy's cmd/tarsy/main.go), reads the
// YAML configuration file from path, expands environment variables, merges
// over Defaults(), and validates the result. An empty path validates and
// returns Defaults().
func Load(path, envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: loading .env file %s: %w", envPath, err)
		}
	}

	cfg := Defaults()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := ExpandEnv(raw)
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s failed validation: %w", path, err)
	}
	return cfg, nil
}
