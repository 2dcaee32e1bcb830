package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTool_Execute(t *testing.T) {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(s, "1.2.3")

	resp := callTool(t, s, context.Background(), "health", nil)
	require.Len(t, resp.Result.Content, 1)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, resp.Result.Content[0].Text)
}
