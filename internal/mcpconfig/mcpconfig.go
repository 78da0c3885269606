// Package mcpconfig defines the shape of a host's .mcp.json file. Parsing
// and discovery (./.mcp.json then $HOME/.mcp.json, with absence not an
// error) stay with the host; this package only carries the struct a host
// decodes that file into before constructing an internal/mcp.Client.
package mcpconfig

import "time"

// File is the top-level .mcp.json shape: a map of server name to its
// launch/connection configuration. Unknown top-level fields are ignored by
// whatever decoder a host uses against this struct (encoding/json already
// does this by default).
type File struct {
	MCPServers map[string]Server `json:"mcpServers"`
}

// Server is one entry in mcpServers. Command/Args/Env describe a stdio
// transport; URL names an SSE or streamable-HTTP endpoint. This package does
// not choose between the SSE and streamable-HTTP transports for a URL.
type Server struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty"`
}

// IsStdio reports whether s should be connected over a subprocess rather
// than HTTP.
func (s Server) IsStdio() bool {
	return s.Command != ""
}
