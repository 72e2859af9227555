// Package protocol defines the wire envelopes exchanged between the gateway,
// the channel relay and the design-tool executor, and the closed set of
// commands the executor understands.
package protocol

import "fmt"

// Command names one operation the executor can perform.
type Command string

const (
	CmdGetDocumentInfo   Command = "get_document_info"
	CmdGetSelection      Command = "get_selection"
	CmdGetNodeInfo       Command = "get_node_info"
	CmdGetNodesInfo      Command = "get_nodes_info"
	CmdCreateRectangle   Command = "create_rectangle"
	CmdCreateFrame       Command = "create_frame"
	CmdCreateText        Command = "create_text"
	CmdSetFillColor      Command = "set_fill_color"
	CmdSetStrokeColor    Command = "set_stroke_color"
	CmdMoveNode          Command = "move_node"
	CmdResizeNode        Command = "resize_node"
	CmdDeleteNode        Command = "delete_node"
	CmdCloneNode         Command = "clone_node"
	CmdExportNodeAsImage Command = "export_node_as_image"
	CmdScanTextNodes     Command = "scan_text_nodes"
	CmdSetTextContent    Command = "set_text_content"
	CmdApplyTranslations Command = "apply_translations"
	CmdJoin              Command = "join"
)

// commands lists every supported command in a stable order.
var commands = []Command{
	CmdGetDocumentInfo,
	CmdGetSelection,
	CmdGetNodeInfo,
	CmdGetNodesInfo,
	CmdCreateRectangle,
	CmdCreateFrame,
	CmdCreateText,
	CmdSetFillColor,
	CmdSetStrokeColor,
	CmdMoveNode,
	CmdResizeNode,
	CmdDeleteNode,
	CmdCloneNode,
	CmdExportNodeAsImage,
	CmdScanTextNodes,
	CmdSetTextContent,
	CmdApplyTranslations,
	CmdJoin,
}

// Commands returns a copy of the supported command set.
func Commands() []Command {
	out := make([]Command, len(commands))
	copy(out, commands)
	return out
}

// String returns the wire name of the command.
func (c Command) String() string {
	return string(c)
}

// Valid reports whether c is a member of the supported command set.
func (c Command) Valid() bool {
	for _, known := range commands {
		if c == known {
			return true
		}
	}
	return false
}

// Mutating reports whether the command changes document state.
func (c Command) Mutating() bool {
	switch c {
	case CmdCreateRectangle, CmdCreateFrame, CmdCreateText,
		CmdSetFillColor, CmdSetStrokeColor, CmdMoveNode, CmdResizeNode,
		CmdDeleteNode, CmdCloneNode, CmdSetTextContent, CmdApplyTranslations:
		return true
	}
	return false
}

// ParseCommand converts a wire name into a Command.
func ParseCommand(name string) (Command, error) {
	c := Command(name)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return c, nil
}
