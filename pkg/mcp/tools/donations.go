// Package tools provides the MCP tool implementations.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/database"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/services"
)

// DonationToolDeps contains dependencies for the donation tools.
type DonationToolDeps struct {
	Scopes          database.ScopeProvider
	DonationService services.DonationService
	Logger          *zap.Logger
}

// RegisterDonationTools registers the read-only donation tools.
func RegisterDonationTools(s *server.MCPServer, deps *DonationToolDeps) {
	registerListAvailableTool(s, deps)
	registerFindNearbyTool(s, deps)
	registerGetDonationTool(s, deps)
}

// withCallerScope resolves the authenticated caller and a database scope for
// one tool call.
func withCallerScope(ctx context.Context, deps *DonationToolDeps, tool string,
	fn func(ctx context.Context, caller models.Caller) (*mcp.CallToolResult, error),
) (*mcp.CallToolResult, error) {
	caller, err := auth.CallerFromContext(ctx)
	if err != nil {
		return NewErrorResult("unauthorized", "authentication required"), nil
	}

	scoped, cleanup, err := deps.Scopes.WithScope(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer cleanup()

	result, err := fn(scoped, caller)
	if err != nil {
		if r := asErrorResult(err); r != nil {
			return r, nil
		}
		deps.Logger.Error("MCP tool failed",
			zap.String("tool", tool),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func readOnlyHints() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func registerListAvailableTool(s *server.MCPServer, deps *DonationToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List every donation that is still available for pickup, newest first."),
	}, readOnlyHints()...)
	tool := mcp.NewTool("list_available_donations", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return withCallerScope(ctx, deps, "list_available_donations", func(ctx context.Context, caller models.Caller) (*mcp.CallToolResult, error) {
			donations, err := deps.DonationService.ListAvailable(ctx, caller)
			if err != nil {
				return nil, err
			}
			return jsonResult(map[string]any{"donations": nonNil(donations)})
		})
	})
}

func registerFindNearbyTool(s *server.MCPServer, deps *DonationToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Find available donations within a radius of a point, nearest first. Each result includes distanceMeters."),
		mcp.WithNumber("latitude", mcp.Required(), mcp.Description("Latitude in degrees, -90 to 90")),
		mcp.WithNumber("longitude", mcp.Required(), mcp.Description("Longitude in degrees, -180 to 180")),
		mcp.WithNumber("radius_meters", mcp.Description("Search radius in meters (default: server setting)")),
	}, readOnlyHints()...)
	tool := mcp.NewTool("find_nearby_donations", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lat, ok := getOptionalFloat(req, "latitude")
		if !ok {
			return NewErrorResult("invalid_argument", "latitude is required"), nil
		}
		lon, ok := getOptionalFloat(req, "longitude")
		if !ok {
			return NewErrorResult("invalid_argument", "longitude is required"), nil
		}
		radius, _ := getOptionalFloat(req, "radius_meters")

		return withCallerScope(ctx, deps, "find_nearby_donations", func(ctx context.Context, caller models.Caller) (*mcp.CallToolResult, error) {
			donations, err := deps.DonationService.FindNearby(ctx, caller, geo.NewPoint(lon, lat), radius)
			if err != nil {
				return nil, err
			}
			return jsonResult(map[string]any{"donations": nonNil(donations)})
		})
	})
}

func registerGetDonationTool(s *server.MCPServer, deps *DonationToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Get one donation by id, including its status and donor."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Donation UUID")),
	}, readOnlyHints()...)
	tool := mcp.NewTool("get_donation", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("id")
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return NewErrorResult("invalid_argument", "id must be a UUID"), nil
		}

		return withCallerScope(ctx, deps, "get_donation", func(ctx context.Context, caller models.Caller) (*mcp.CallToolResult, error) {
			donation, err := deps.DonationService.Get(ctx, caller, id)
			if err != nil {
				return nil, err
			}
			return jsonResult(donation)
		})
	})
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

func nonNil(donations []*models.Donation) []*models.Donation {
	if donations == nil {
		return []*models.Donation{}
	}
	return donations
}
