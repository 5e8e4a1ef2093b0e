//go:build tools

package tools

// mockery v3 is used as an installed binary, so no tool import is needed.
// Run mockery from the repository root to regenerate pkg/session/mocks and
// pkg/discovery/mocks from .mockery.yaml.
