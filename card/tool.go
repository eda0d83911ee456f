package card

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolName is the MCP tool that generates a card.
const ToolName = "generate_card"

// Tool describes the generate_card MCP tool. The image is passed as base64,
// optionally as a data URI.
func Tool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Generate a custom trading card with AI-generated artwork from a photo"),
		mcp.WithString("image", mcp.Required(), mcp.Description("Base64 encoded photo, optionally as a data URI")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name printed on the card")),
		mcp.WithString("birthday", mcp.Required(), mcp.Description("Birthday printed on the card")),
	)
}

// ToolHandler runs the workflow for a generate_card call. Failures are returned
// as tool errors so a payment gateway in front of the tool does not settle them.
func (w *Workflow) ToolHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		encoded, err := request.RequireString("image")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		birthday, err := request.RequireString("birthday")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		image, err := decodeImageArg(encoded)
		if err != nil {
			return mcp.NewToolResultError("image must be base64 encoded"), nil
		}

		url, err := w.Run(ctx, Request{Image: image, Name: name, Birthday: birthday}, Discard)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(url), nil
	}
}

func decodeImageArg(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
