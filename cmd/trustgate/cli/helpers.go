package cli

import (
	"os"

	"github.com/spf13/viper"

	"github.com/trustgate/trustgate/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TRUSTGATE_DATA_DIR env var, or ~/.trustgate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TRUSTGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.trustgate"
}

// openStore opens the key/audit store using the configured driver. The
// sqlite default lives under the resolved data directory.
func openStore() (*config.Store, error) {
	driver := viper.GetString("store.driver")
	dsn := viper.GetString("store.dsn")
	dir := viper.GetString("store.data_dir")
	if dir == "" {
		dir = resolveDataDir()
	}
	return config.NewStore(driver, dsn, dir)
}
