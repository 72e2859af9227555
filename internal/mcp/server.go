// Package mcp exposes the design commands to an AI agent as MCP tools over
// stdio. Every tool call is forwarded through the gateway.
package mcp

import (
	"context"
	"encoding/json"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/gateway"
	"github.com/leonletto/figlink/internal/logging"
	"github.com/leonletto/figlink/internal/protocol"
)

// Gateway is the command path the tools use.
type Gateway interface {
	Send(ctx context.Context, p protocol.Params) (json.RawMessage, error)
	Join(ctx context.Context, channel string) error
	CloneNode(ctx context.Context, nodeID string, offset *protocol.Point) (json.RawMessage, error)
	Status() gateway.Status
}

// Server is the figlink MCP server.
type Server struct {
	gw      Gateway
	log     *zap.Logger
	version string
	server  *gomcp.Server
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// NewServer creates an MCP server that sends every tool call through gw.
func NewServer(gw Gateway, opts ...Option) *Server {
	s := &Server{
		gw:      gw,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "mcp")

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "figlink",
			Version: s.version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP on stdin/stdout. It blocks until the client disconnects or
// ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// Connect serves MCP on t; used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t gomcp.Transport) (*gomcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "join_channel",
		Description: "Join the relay channel the Figma plugin is connected to. Required before any other design command",
	}, s.handleJoinChannel)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_connection_status",
		Description: "Report the relay connection state, the joined channel and the number of commands in flight",
	}, s.handleConnectionStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdGetDocumentInfo),
		Description: "Get detailed information about the current Figma document",
	}, s.handleDocumentInfo)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdGetSelection),
		Description: "Get information about the current selection in Figma",
	}, s.handleSelection)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdGetNodeInfo),
		Description: "Get detailed information about a specific node",
	}, s.handleNodeInfo)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdGetNodesInfo),
		Description: "Get detailed information about multiple nodes",
	}, s.handleNodesInfo)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdCreateRectangle),
		Description: "Create a new rectangle",
	}, s.handleCreateRectangle)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdCreateFrame),
		Description: "Create a new frame",
	}, s.handleCreateFrame)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdCreateText),
		Description: "Create a new text element",
	}, s.handleCreateText)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdSetFillColor),
		Description: "Set the fill color of a node",
	}, s.handleSetFillColor)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdSetStrokeColor),
		Description: "Set the stroke color of a node",
	}, s.handleSetStrokeColor)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdMoveNode),
		Description: "Move a node to a new position",
	}, s.handleMoveNode)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdResizeNode),
		Description: "Resize a node",
	}, s.handleResizeNode)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdDeleteNode),
		Description: "Delete a node",
	}, s.handleDeleteNode)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdCloneNode),
		Description: "Clone a node, optionally offset from the original by x and y",
	}, s.handleCloneNode)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdExportNodeAsImage),
		Description: "Export a node as an image",
	}, s.handleExport)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdScanTextNodes),
		Description: "Scan all text nodes under a node. Large designs report progress while scanning",
	}, s.handleScanText)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdSetTextContent),
		Description: "Set the text content of a text node",
	}, s.handleSetText)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        string(protocol.CmdApplyTranslations),
		Description: "Replace the text of several text nodes under a node in one batch",
	}, s.handleTranslations)
}
