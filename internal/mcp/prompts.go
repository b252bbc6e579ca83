package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("join_files",
		mcp.WithPromptDescription("Join two JSON files on integer keys and report per-name totals"),
		mcp.WithArgument("leftFile",
			mcp.ArgumentDescription("Path of the left JSON file (e.g. customers.json)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("rightFile",
			mcp.ArgumentDescription("Path of the right JSON file (e.g. orders.json)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("leftKey",
			mcp.ArgumentDescription("Key field in the left file (e.g. cid)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("rightKey",
			mcp.ArgumentDescription("Key field in the right file (e.g. customer_id)"),
			mcp.RequiredArgument(),
		),
	), s.handleJoinFilesPrompt)
}

func (s *Server) handleJoinFilesPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	leftFile := req.Params.Arguments["leftFile"]
	rightFile := req.Params.Arguments["rightFile"]
	leftKey := req.Params.Arguments["leftKey"]
	rightKey := req.Params.Arguments["rightKey"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Join %s with %s", leftFile, rightFile),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Join %[1]q with %[2]q where %[1]s.%[3]s equals %[2]s.%[4]s. Follow these steps:

1. Use preview_join_source with sourceType "json_file" on both files to check that %[3]s and %[4]s hold integers
2. Create the job with create_join_job, using json_file sides keyed on %[3]s and %[4]s and targetType "table"
3. If totals are wanted, pass reportJSON with the group field, the numeric field to sum and the names
4. Run it with run_join_job and read the stored rows from the jsonjoin://jobs/{jobId}/rows resource

Every key must be an integer: a missing key or a float/string key fails the run, so fix the data or add a type_cast transform on that side.`, leftFile, rightFile, leftKey, rightKey),
				},
			},
		},
	}, nil
}
