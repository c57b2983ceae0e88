// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/trellis/internal/adapters/cas"
	_ "go.trai.ch/trellis/internal/adapters/config"
	_ "go.trai.ch/trellis/internal/adapters/httpapi"
	_ "go.trai.ch/trellis/internal/adapters/logger"
	_ "go.trai.ch/trellis/internal/adapters/secrets"
	_ "go.trai.ch/trellis/internal/adapters/shell"
	_ "go.trai.ch/trellis/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/trellis/internal/app"
)
