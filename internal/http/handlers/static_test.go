package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticHandler_Root(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "hlsgate")
}

func TestStaticHandler_UnmatchedAPIRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionHandler_GetVersion(t *testing.T) {
	handler := NewVersionHandler()

	output, err := handler.GetVersion(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Version == "" {
		t.Error("expected non-empty version")
	}

	if output.Body.GoVersion == "" {
		t.Error("expected non-empty go version")
	}
}
