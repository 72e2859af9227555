package mcp

import "github.com/leonletto/figlink/internal/protocol"

// EmptyInput is the input for tools that take no arguments.
type EmptyInput struct{}

// JoinChannelInput is the input for the join_channel MCP tool.
type JoinChannelInput struct {
	Channel string `json:"channel" jsonschema:"Name of the channel the design-tool plugin joined"`
}

// NodeInput is the input for tools addressing a single node.
type NodeInput struct {
	NodeID string `json:"nodeId" jsonschema:"ID of the node"`
}

// NodesInput is the input for the get_nodes_info MCP tool.
type NodesInput struct {
	NodeIDs []string `json:"nodeIds" jsonschema:"IDs of the nodes to inspect"`
}

// ColorInput is an RGBA color with channels in [0,1].
type ColorInput struct {
	R float64  `json:"r" jsonschema:"Red component (0-1)"`
	G float64  `json:"g" jsonschema:"Green component (0-1)"`
	B float64  `json:"b" jsonschema:"Blue component (0-1)"`
	A *float64 `json:"a,omitempty" jsonschema:"Alpha component (0-1). Default 1"`
}

func (c *ColorInput) color() *protocol.Color {
	if c == nil {
		return nil
	}
	a := 1.0
	if c.A != nil {
		a = *c.A
	}
	return &protocol.Color{R: c.R, G: c.G, B: c.B, A: a}
}

// CreateRectangleInput is the input for the create_rectangle MCP tool.
type CreateRectangleInput struct {
	X        float64 `json:"x" jsonschema:"X position"`
	Y        float64 `json:"y" jsonschema:"Y position"`
	Width    float64 `json:"width" jsonschema:"Width of the rectangle"`
	Height   float64 `json:"height" jsonschema:"Height of the rectangle"`
	Name     string  `json:"name,omitempty" jsonschema:"Optional name for the rectangle"`
	ParentID string  `json:"parentId,omitempty" jsonschema:"Optional parent node ID to append the rectangle to"`
}

// CreateFrameInput is the input for the create_frame MCP tool.
type CreateFrameInput struct {
	X            float64     `json:"x" jsonschema:"X position"`
	Y            float64     `json:"y" jsonschema:"Y position"`
	Width        float64     `json:"width" jsonschema:"Width of the frame"`
	Height       float64     `json:"height" jsonschema:"Height of the frame"`
	Name         string      `json:"name,omitempty" jsonschema:"Optional name for the frame"`
	ParentID     string      `json:"parentId,omitempty" jsonschema:"Optional parent node ID to append the frame to"`
	FillColor    *ColorInput `json:"fillColor,omitempty" jsonschema:"Fill color"`
	StrokeColor  *ColorInput `json:"strokeColor,omitempty" jsonschema:"Stroke color"`
	StrokeWeight *float64    `json:"strokeWeight,omitempty" jsonschema:"Stroke weight"`
}

// CreateTextInput is the input for the create_text MCP tool.
type CreateTextInput struct {
	X          float64     `json:"x" jsonschema:"X position"`
	Y          float64     `json:"y" jsonschema:"Y position"`
	Text       string      `json:"text" jsonschema:"Text content"`
	FontSize   float64     `json:"fontSize,omitempty" jsonschema:"Font size. Default 14"`
	FontWeight int         `json:"fontWeight,omitempty" jsonschema:"Font weight (100-900). Default 400"`
	FontColor  *ColorInput `json:"fontColor,omitempty" jsonschema:"Font color. Default black"`
	Name       string      `json:"name,omitempty" jsonschema:"Optional name for the text node"`
	ParentID   string      `json:"parentId,omitempty" jsonschema:"Optional parent node ID to append the text to"`
}

// SetColorInput is the input for the set_fill_color MCP tool.
type SetColorInput struct {
	NodeID string   `json:"nodeId" jsonschema:"ID of the node to modify"`
	R      float64  `json:"r" jsonschema:"Red component (0-1)"`
	G      float64  `json:"g" jsonschema:"Green component (0-1)"`
	B      float64  `json:"b" jsonschema:"Blue component (0-1)"`
	A      *float64 `json:"a,omitempty" jsonschema:"Alpha component (0-1). Default 1"`
}

func (in SetColorInput) color() protocol.Color {
	c := ColorInput{R: in.R, G: in.G, B: in.B, A: in.A}
	return *c.color()
}

// SetStrokeInput is the input for the set_stroke_color MCP tool.
type SetStrokeInput struct {
	NodeID string   `json:"nodeId" jsonschema:"ID of the node to modify"`
	R      float64  `json:"r" jsonschema:"Red component (0-1)"`
	G      float64  `json:"g" jsonschema:"Green component (0-1)"`
	B      float64  `json:"b" jsonschema:"Blue component (0-1)"`
	A      *float64 `json:"a,omitempty" jsonschema:"Alpha component (0-1). Default 1"`
	Weight *float64 `json:"weight,omitempty" jsonschema:"Stroke weight"`
}

// MoveNodeInput is the input for the move_node MCP tool.
type MoveNodeInput struct {
	NodeID string  `json:"nodeId" jsonschema:"ID of the node to move"`
	X      float64 `json:"x" jsonschema:"New X position"`
	Y      float64 `json:"y" jsonschema:"New Y position"`
}

// ResizeNodeInput is the input for the resize_node MCP tool.
type ResizeNodeInput struct {
	NodeID string  `json:"nodeId" jsonschema:"ID of the node to resize"`
	Width  float64 `json:"width" jsonschema:"New width"`
	Height float64 `json:"height" jsonschema:"New height"`
}

// CloneNodeInput is the input for the clone_node MCP tool. X and Y are
// offsets from the original node.
type CloneNodeInput struct {
	NodeID string   `json:"nodeId" jsonschema:"ID of the node to clone"`
	X      *float64 `json:"x,omitempty" jsonschema:"Horizontal offset from the original node"`
	Y      *float64 `json:"y,omitempty" jsonschema:"Vertical offset from the original node"`
}

// ExportInput is the input for the export_node_as_image MCP tool.
type ExportInput struct {
	NodeID string  `json:"nodeId" jsonschema:"ID of the node to export"`
	Format string  `json:"format,omitempty" jsonschema:"Export format: PNG, JPG, SVG or PDF. Default PNG"`
	Scale  float64 `json:"scale,omitempty" jsonschema:"Export scale (0-4]. Default 1"`
}

// SetTextInput is the input for the set_text_content MCP tool.
type SetTextInput struct {
	NodeID string `json:"nodeId" jsonschema:"ID of the text node"`
	Text   string `json:"text" jsonschema:"New text content"`
}

// TranslationInput replaces the text of one node.
type TranslationInput struct {
	NodeID string `json:"nodeId" jsonschema:"ID of the text node"`
	Text   string `json:"text" jsonschema:"Translated text"`
}

// TranslationsInput is the input for the apply_translations MCP tool.
type TranslationsInput struct {
	NodeID       string             `json:"nodeId" jsonschema:"ID of the node containing the text nodes"`
	Translations []TranslationInput `json:"translations" jsonschema:"Replacements to apply"`
}
