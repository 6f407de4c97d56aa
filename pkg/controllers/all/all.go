// Package all is a convenience wrapper that registers all known controller
// implementations. Importing this package enables the govalve factory to
// find a driver for any supported device family.
package all

// Import each implementation package for its side-effects (the init() function).
import (
	_ "github.com/openwater/govalve/pkg/controllers/mock"
	_ "github.com/openwater/govalve/pkg/controllers/oasis"
)
