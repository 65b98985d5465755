package capture

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/rewind/kit"
)

type mcpTool struct {
	name        string
	action      string
	description string
	properties  map[string]any
}

var mcpTools = []mcpTool{
	{
		name:        "rewind_start",
		action:      ActionStart,
		description: "Start recording a target. Discards any unsaved recording.",
		properties: map[string]any{
			"target": map[string]any{"type": "string", "description": "Tab or session identifier"},
			"kind":   map[string]any{"type": "string", "enum": []any{KindFullPage, KindViewport, KindArea}, "description": "Capture kind (default full-page)"},
		},
	},
	{name: "rewind_stop", action: ActionStop, description: "Stop recording. Records are kept until saved or discarded."},
	{name: "rewind_pause", action: ActionPause, description: "Pause recording. Records are dropped while paused."},
	{name: "rewind_resume", action: ActionResume, description: "Resume a paused recording."},
	{name: "rewind_discard", action: ActionDiscard, description: "Stop recording if needed and drop every record."},
	{name: "rewind_save", action: ActionSave, description: "Acknowledge that a stopped recording was saved and clear it."},
	{name: "rewind_status", action: ActionData, description: "Return the recorder state and the mirrored records."},
	{
		name:        "rewind_replay",
		action:      ActionReplay,
		description: "Return the records needed to replay the last duration milliseconds, starting at a full snapshot.",
		properties: map[string]any{
			"duration": map[string]any{"type": "integer", "description": "Replay window in milliseconds (default from configuration)"},
		},
	},
}

// Endpoint returns a kit endpoint running action. It takes an
// *ActionPayload and always answers with a Result.
func (s *Session) Endpoint(action string) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		var p ActionPayload
		if rp, ok := req.(*ActionPayload); ok && rp != nil {
			p = *rp
		}
		return s.HandleAction(ctx, action, p), nil
	}
}

// rejectedAsError turns an unsuccessful Result into an endpoint error.
func rejectedAsError(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		if res, ok := resp.(Result); ok && err == nil && !res.Success {
			return nil, fmt.Errorf("%s: %s", res.Code, res.Error)
		}
		return resp, err
	}
}

// RegisterMCP registers the rewind tools on an MCP server. Failed actions
// are reported as tool errors.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	for _, t := range mcpTools {
		tool := &mcp.Tool{
			Name:        t.name,
			Description: t.description,
			InputSchema: kit.InputSchema(t.properties),
		}
		endpoint := kit.Chain(kit.Logging(s.logger, t.name), rejectedAsError)(s.Endpoint(t.action))
		kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[ActionPayload]())
	}
}
