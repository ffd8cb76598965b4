// ABOUTME: MCP resource handlers exposing calendar sync data
// ABOUTME: Provides read-only access to connection status, events, and notifications via dayplan:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/dayplan/db"
)

const resourceScheme = "dayplan://"

type ResourceHandlers struct {
	service       SyncService
	events        *db.EventRepository
	notifications *db.NotificationRepository
	userID        string
}

func NewResourceHandlers(service SyncService, events *db.EventRepository, notifications *db.NotificationRepository, userID string) *ResourceHandlers {
	return &ResourceHandlers{service: service, events: events, notifications: notifications, userID: userID}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch parts[0] {
	case "status":
		status, err := h.service.Status(ctx, h.userID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch status: %w", err)
		}
		return jsonResource(uri, status)

	case "events":
		if len(parts) == 1 {
			events, err := h.events.ListEvents(ctx, h.userID, db.EventFilter{LinkedOnly: true, Limit: 1000})
			if err != nil {
				return nil, fmt.Errorf("failed to fetch events: %w", err)
			}
			return jsonResource(uri, events)
		}
		return h.readEvent(ctx, uri, parts[1])

	case "notifications":
		notifications, err := h.notifications.ListNotifications(ctx, h.userID, false, 100)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch notifications: %w", err)
		}
		return jsonResource(uri, notifications)

	default:
		return nil, fmt.Errorf("unknown resource: %s", parts[0])
	}
}

func (h *ResourceHandlers) readEvent(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	if _, err := uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid event ID: %w", err)
	}

	event, err := h.events.GetEvent(ctx, h.userID, idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event: %w", err)
	}
	return jsonResource(uri, event)
}

// Register adds the static resources and the event template to server.
func (h *ResourceHandlers) Register(server *mcp.Server) {
	for _, r := range []*mcp.Resource{
		{URI: resourceScheme + "status", Name: "status", Description: "Google Calendar connection status", MIMEType: "application/json"},
		{URI: resourceScheme + "events", Name: "events", Description: "Events imported from Google Calendar", MIMEType: "application/json"},
		{URI: resourceScheme + "notifications", Name: "notifications", Description: "Import notifications", MIMEType: "application/json"},
	} {
		server.AddResource(r, h.ReadResource)
	}

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: resourceScheme + "events/{id}",
		Name:        "event",
		Description: "A single event by ID",
		MIMEType:    "application/json",
	}, h.ReadResource)
}

func jsonResource(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
