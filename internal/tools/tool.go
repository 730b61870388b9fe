// Package tools registers the capabilities agents may call while running a
// pipeline stage.
package tools

import "google.golang.org/adk/tool"

// Tool represents a callable capability exposed to agents.
type Tool = tool.Tool
