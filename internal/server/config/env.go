package config

import "github.com/caarlos0/env/v11"

const envPrefix = "GATEKEEPER_"

// parseEnv overlays GATEKEEPER_* variables, e.g. GATEKEEPER_SECRET_KEY or
// GATEKEEPER_ACCESS_TOKEN_TTL=15m. Unset variables leave config untouched.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		panic(err)
	}
}
