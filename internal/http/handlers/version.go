package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/hlsgate/internal/version"
)

// VersionHandler exposes build information.
type VersionHandler struct{}

// NewVersionHandler creates a new version handler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// Register registers the version route with the API.
func (h *VersionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      "GET",
		Path:        "/api/v1/version",
		Summary:     "Version information",
		Description: "Returns the build version, commit and platform",
		Tags:        []string{"System"},
	}, h.GetVersion)
}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body version.Info
}

// GetVersion returns build information.
func (h *VersionHandler) GetVersion(ctx context.Context, _ *struct{}) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}
