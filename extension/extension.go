// Package extension provides the Forge extension adapter for lien.
//
// It implements the forge.Extension interface to integrate the lien
// controller into a Forge application with DI registration and lifecycle
// management. Register builds the claim registry and the credit ledger,
// hands both roles to the controller and provides the controller to the
// container.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.lien" or "lien" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/lien"
	"github.com/xraph/lien/credit"
	"github.com/xraph/lien/invoice"
	"github.com/xraph/lien/store"
	"github.com/xraph/lien/store/memory"
	"github.com/xraph/lien/store/mongo"
	"github.com/xraph/lien/store/postgres"
	"github.com/xraph/lien/store/sqlite"
	"github.com/xraph/lien/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "lien"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Invoice-collateralized credit issuance"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// deployer owns the registry and the ledger between construction and the
// handoff to the controller.
const deployer types.Address = "lien:deployer"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the lien controller as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config         Config
	controller     *lien.Controller
	store          store.Store
	groveDB        *grove.DB
	controllerOpts []lien.Option
}

// New creates a new lien Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Controller returns the underlying controller.
// This is nil until Register is called.
func (e *Extension) Controller() *lien.Controller { return e.controller }

// Register implements [forge.Extension]. It loads configuration, builds the
// controller and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*lien.Controller, error) {
		return e.controller, nil
	})
}

// build wires the store, the registry, the ledger and the controller from
// the resolved config.
func (e *Extension) build() error {
	if e.config.Originator == "" {
		return errors.New("lien: originator is required")
	}

	if e.store == nil {
		s, err := e.resolveStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	reg := invoice.NewRegistry(deployer)
	led := credit.NewLedger(deployer)
	c := lien.New(reg, led, e.store, e.buildControllerOpts()...)

	if err := reg.TransferAdmin(deployer, c.Address()); err != nil {
		return fmt.Errorf("lien: hand off registry: %w", err)
	}
	if err := led.TransferIssuer(deployer, c.Address()); err != nil {
		return fmt.Errorf("lien: hand off ledger: %w", err)
	}

	e.controller = c
	return nil
}

// resolveStore picks the journal backend for the configured driver.
func (e *Extension) resolveStore() (store.Store, error) {
	if e.groveDB == nil {
		if e.config.Driver != "" && e.config.Driver != DriverMemory {
			return nil, fmt.Errorf("lien: driver %q needs a grove database", e.config.Driver)
		}
		return memory.New(), nil
	}

	switch e.config.Driver {
	case DriverPostgres:
		return postgres.New(e.groveDB), nil
	case DriverSQLite:
		return sqlite.New(e.groveDB), nil
	case DriverMongo:
		return mongo.New(e.groveDB), nil
	default:
		return nil, fmt.Errorf("lien: unsupported driver %q", e.config.Driver)
	}
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.controller == nil {
		return errors.New("lien: extension not initialized")
	}

	if err := e.controller.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.controller != nil {
		if err := e.controller.Stop(); err != nil && !errors.Is(err, lien.ErrNotStarted) {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("lien: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if sol := e.controller.Solvency(ctx); !sol.Solvent() {
		return fmt.Errorf("lien: insolvent: %d coins and %d allowance against %d backing",
			sol.TotalSupply, sol.Allowances, sol.Backing)
	}
	return nil
}

// buildControllerOpts constructs lien.Option values from the resolved config.
func (e *Extension) buildControllerOpts() []lien.Option {
	opts := make([]lien.Option, 0, len(e.controllerOpts)+3)

	opts = append(opts, lien.WithOriginator(types.Address(e.config.Originator)))
	if e.config.Address != "" {
		opts = append(opts, lien.WithAddress(types.Address(e.config.Address)))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, lien.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Append any pass-through controller options.
	opts = append(opts, e.controllerOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("lien: configuration is required but not found in config files; " +
				"ensure 'extensions.lien' or 'lien' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("lien: configuration loaded",
		forge.F("address", e.config.Address),
		forge.F("originator", e.config.Originator),
		forge.F("driver", e.config.Driver),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.lien", "lien"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("lien: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("lien: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if yamlConfig.Address == "" {
		yamlConfig.Address = programmaticConfig.Address
	}
	if yamlConfig.Originator == "" {
		yamlConfig.Originator = programmaticConfig.Originator
	}
	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
