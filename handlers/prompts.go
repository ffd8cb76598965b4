// ABOUTME: MCP prompt handlers for calendar sync workflows
// ABOUTME: Builds a conflict review prompt from the latest import notification
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
)

type PromptHandlers struct {
	service       SyncService
	notifications *db.NotificationRepository
	userID        string
}

func NewPromptHandlers(service SyncService, notifications *db.NotificationRepository, userID string) *PromptHandlers {
	return &PromptHandlers{service: service, notifications: notifications, userID: userID}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "import-review":
		return h.getImportReviewPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getImportReviewPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	status, err := h.service.Status(ctx, h.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}

	var promptText strings.Builder
	if !status.Connected {
		promptText.WriteString("Google Calendar is not connected. Explain how to connect it with `dayplan connect`.\n")
		return promptResult("Google Calendar import review", promptText.String()), nil
	}

	promptText.WriteString(fmt.Sprintf("Review the latest Google Calendar import for %s.\n\n", *status.Email))
	if status.LastRunStatus == models.RunStatusError && status.LastRunError != nil {
		promptText.WriteString(fmt.Sprintf("The last run failed: %s\n\n", *status.LastRunError))
	}

	notifications, err := h.notifications.ListNotifications(ctx, h.userID, false, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	if len(notifications) == 0 {
		promptText.WriteString("No import has completed yet. Suggest running the import_now tool.\n")
		return promptResult("Google Calendar import review", promptText.String()), nil
	}

	latest := notifications[0]
	promptText.WriteString(fmt.Sprintf("Latest import: %s\n", latest.Message))
	for _, key := range []string{"imported_count", "skipped_count"} {
		if v, ok := latest.Metadata[key]; ok {
			promptText.WriteString(fmt.Sprintf("- %s: %v\n", key, v))
		}
	}
	if conflicts, ok := latest.Metadata["conflicts"].([]interface{}); ok && len(conflicts) > 0 {
		promptText.WriteString("\nEvents changed both locally and in Google since the last sync:\n")
		for _, c := range conflicts {
			if m, ok := c.(map[string]interface{}); ok {
				promptText.WriteString(fmt.Sprintf("- %v (local %v, google %v)\n", m["title"], m["local_updated_at"], m["external_updated_at"]))
			}
		}
		promptText.WriteString("\nFor each conflict, help me decide which version to keep.\n")
	} else {
		promptText.WriteString("\nThere were no conflicts. Summarize what changed.\n")
	}

	return promptResult("Google Calendar import review", promptText.String()), nil
}

// Register adds the prompts to server.
func (h *PromptHandlers) Register(server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        "import-review",
		Description: "Review the latest Google Calendar import and any conflicts it reported",
	}, h.GetPrompt)
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}
