package extension

import "time"

// Driver names accepted in Config.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the lien extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.lien" or "lien" keys).
type Config struct {
	// Address is the controller's own account (default: "lien:controller").
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// Originator is the only account allowed to create invoices.
	Originator string `json:"originator" mapstructure:"originator" yaml:"originator"`

	// Driver selects the journal backend when a grove.DB is supplied with
	// WithGroveDB: "postgres", "sqlite" or "mongo". Without a database the
	// in-memory journal is used.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:       "lien:controller",
		Driver:        DriverMemory,
		PluginTimeout: 5 * time.Second,
	}
}
