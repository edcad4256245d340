package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/lien"
	"github.com/xraph/lien/plugin"
	"github.com/xraph/lien/store"
)

// Option configures the lien Forge extension.
type Option func(*Extension)

// WithStore sets the journal store for the controller.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB journals to db. The backend is picked from driver
// ("postgres", "sqlite" or "mongo"), which may also come from config.
func WithGroveDB(driver string, db *grove.DB) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.groveDB = db
	}
}

// WithControllerOption passes a lien.Option through to the controller.
func WithControllerOption(opt lien.Option) Option {
	return func(e *Extension) {
		e.controllerOpts = append(e.controllerOpts, opt)
	}
}

// WithPlugin registers a lien plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.controllerOpts = append(e.controllerOpts, lien.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithAddress sets the controller's own account.
func WithAddress(addr string) Option {
	return func(e *Extension) { e.config.Address = addr }
}

// WithOriginator sets the account allowed to create invoices.
func WithOriginator(addr string) Option {
	return func(e *Extension) { e.config.Originator = addr }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
