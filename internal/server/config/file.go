package config

import (
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/spf13/viper"
)

// configFileEnv names the variable consulted when no -c/-config flag is given.
const configFileEnv = "GATEKEEPER_CONFIG"

// parseFile overlays values from a JSON or YAML config file. The format
// follows the file extension. Keys absent from the file leave config
// untouched. An unreadable or malformed file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		path = os.Getenv(configFileEnv)
	}
	if path == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		panic(err)
	}
	if err := v.Unmarshal(config); err != nil {
		panic(err)
	}
}
