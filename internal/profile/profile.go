// Package profile defines the contract a device profile implements and the
// registry the entrypoint picks the active profile from. A profile is one
// emulated device family: it owns its fixture state, sessions, and crypto,
// and exposes the device's HTTP dialect as a route table.
package profile

import (
	"net/http"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Route is one HTTP route of a device dialect, in Go 1.22 ServeMux pattern
// syntax. Routes are mounted at the URL root: real firmware owns its whole
// URL space, and integrations dial the bare host.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Profile is an emulated device family.
type Profile interface {
	// Name returns the profile's identifier ("deco", "archer", "omada").
	Name() string

	// Title returns the human-readable device name for banners and
	// landing pages.
	Title() string

	// Init prepares fixture state, keys, and sessions. config is the
	// profile's own subtree; logger is already named.
	Init(config *viper.Viper, logger *zap.Logger) error

	// Routes returns the device dialect's HTTP routes.
	Routes() []Route

	// Hints returns human-readable login hints printed at startup.
	Hints() []string
}
