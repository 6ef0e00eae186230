package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common support workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("access_investigation").
		Description("Walk through why a member cannot watch a video and how to repair it.").
		Argument("user_id", "The member's user id", true).
		Argument("video_id", "The video the member cannot open", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			userID := args["user_id"]
			if userID == "" {
				return nil, fmt.Errorf("user_id is required")
			}
			videoStep := "2. Call billing.access with only user_id to list the accessible price ids."
			if v := args["video_id"]; v != "" {
				videoStep = fmt.Sprintf("2. Call billing.access with user_id %s and video_id %s to get the decision and the required price.", userID, v)
			}

			return &mcp.PromptResult{
				Description: "Access Investigation",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`A member (user %s) reports they cannot watch content. Please:

1. Call billing.status to see their latest subscription and its period end.
%s
3. If the processor shows a payment the database does not, ask me for the stored event file and call billing.replay with it.
4. If the database is already correct, call billing.invalidate so the cached summary is rebuilt.

Use the reformer://billing/events resource to explain what each event does.
Summarize the root cause in one paragraph.`, userID, videoStep),
						},
					},
				},
			}, nil
		})

	return nil
}
