package ports

import "go.trai.ch/trellis/internal/core/domain"

// ConfigLoader defines the interface for loading the pipeline configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load finds the pipeline file by walking up from cwd and returns the validated pipeline.
	Load(cwd string) (*domain.Pipeline, error)

	// DiscoverRoot walks up from cwd and returns the directory containing the pipeline file.
	DiscoverRoot(cwd string) (string, error)
}
