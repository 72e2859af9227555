package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Params is the parameter set of exactly one command. The set of
// implementations is closed: only types in this package satisfy it.
type Params interface {
	Command() Command
	Validate() error
	params()
}

// Color is an RGBA color with every channel in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Point is an absolute canvas position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Translation replaces the characters of one text node.
type Translation struct {
	NodeID string `json:"nodeId"`
	Text   string `json:"text"`
}

// Export formats accepted by export_node_as_image.
const (
	FormatPNG = "PNG"
	FormatJPG = "JPG"
	FormatSVG = "SVG"
	FormatPDF = "PDF"
)

const maxExportScale = 4

type GetDocumentInfo struct{}

type GetSelection struct{}

type GetNodeInfo struct {
	NodeID string `json:"nodeId"`
}

type GetNodesInfo struct {
	NodeIDs []string `json:"nodeIds"`
}

type CreateRectangle struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Name     string  `json:"name,omitempty"`
	ParentID string  `json:"parentId,omitempty"`
}

type CreateFrame struct {
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Width        float64  `json:"width"`
	Height       float64  `json:"height"`
	Name         string   `json:"name,omitempty"`
	ParentID     string   `json:"parentId,omitempty"`
	FillColor    *Color   `json:"fillColor,omitempty"`
	StrokeColor  *Color   `json:"strokeColor,omitempty"`
	StrokeWeight *float64 `json:"strokeWeight,omitempty"`
}

type CreateText struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Text       string  `json:"text"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontWeight int     `json:"fontWeight,omitempty"`
	FontColor  *Color  `json:"fontColor,omitempty"`
	Name       string  `json:"name,omitempty"`
	ParentID   string  `json:"parentId,omitempty"`
}

type SetFillColor struct {
	NodeID string `json:"nodeId"`
	Color  Color  `json:"color"`
}

type SetStrokeColor struct {
	NodeID string   `json:"nodeId"`
	Color  Color    `json:"color"`
	Weight *float64 `json:"weight,omitempty"`
}

type MoveNode struct {
	NodeID string  `json:"nodeId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type ResizeNode struct {
	NodeID string  `json:"nodeId"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DeleteNode struct {
	NodeID string `json:"nodeId"`
}

// CloneNode duplicates a node. X and Y are absolute; a nil position places
// the clone on top of the original.
type CloneNode struct {
	NodeID string   `json:"nodeId"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

type ExportNodeAsImage struct {
	NodeID string  `json:"nodeId"`
	Format string  `json:"format,omitempty"`
	Scale  float64 `json:"scale,omitempty"`
}

type ScanTextNodes struct {
	NodeID string `json:"nodeId"`
}

type SetTextContent struct {
	NodeID string `json:"nodeId"`
	Text   string `json:"text"`
}

type ApplyTranslations struct {
	NodeID       string        `json:"nodeId"`
	Translations []Translation `json:"translations"`
}

// Join asks the relay to place the sending connection in Channel.
type Join struct {
	Channel string `json:"channel"`
}

func (GetDocumentInfo) Command() Command   { return CmdGetDocumentInfo }
func (GetSelection) Command() Command      { return CmdGetSelection }
func (GetNodeInfo) Command() Command       { return CmdGetNodeInfo }
func (GetNodesInfo) Command() Command      { return CmdGetNodesInfo }
func (CreateRectangle) Command() Command   { return CmdCreateRectangle }
func (CreateFrame) Command() Command       { return CmdCreateFrame }
func (CreateText) Command() Command        { return CmdCreateText }
func (SetFillColor) Command() Command      { return CmdSetFillColor }
func (SetStrokeColor) Command() Command    { return CmdSetStrokeColor }
func (MoveNode) Command() Command          { return CmdMoveNode }
func (ResizeNode) Command() Command        { return CmdResizeNode }
func (DeleteNode) Command() Command        { return CmdDeleteNode }
func (CloneNode) Command() Command         { return CmdCloneNode }
func (ExportNodeAsImage) Command() Command { return CmdExportNodeAsImage }
func (ScanTextNodes) Command() Command     { return CmdScanTextNodes }
func (SetTextContent) Command() Command    { return CmdSetTextContent }
func (ApplyTranslations) Command() Command { return CmdApplyTranslations }
func (Join) Command() Command              { return CmdJoin }

func (GetDocumentInfo) params()   {}
func (GetSelection) params()      {}
func (GetNodeInfo) params()       {}
func (GetNodesInfo) params()      {}
func (CreateRectangle) params()   {}
func (CreateFrame) params()       {}
func (CreateText) params()        {}
func (SetFillColor) params()      {}
func (SetStrokeColor) params()    {}
func (MoveNode) params()          {}
func (ResizeNode) params()        {}
func (DeleteNode) params()        {}
func (CloneNode) params()         {}
func (ExportNodeAsImage) params() {}
func (ScanTextNodes) params()     {}
func (SetTextContent) params()    {}
func (ApplyTranslations) params() {}
func (Join) params()              {}

func (GetDocumentInfo) Validate() error { return nil }

func (GetSelection) Validate() error { return nil }

func (p GetNodeInfo) Validate() error {
	return requireID(CmdGetNodeInfo, "nodeId", p.NodeID)
}

func (p GetNodesInfo) Validate() error {
	if len(p.NodeIDs) == 0 {
		return invalid(CmdGetNodesInfo, "nodeIds", "at least one node id is required")
	}
	for i, id := range p.NodeIDs {
		if err := requireID(CmdGetNodesInfo, fmt.Sprintf("nodeIds[%d]", i), id); err != nil {
			return err
		}
	}
	return nil
}

func (p CreateRectangle) Validate() error {
	if err := requirePosition(CmdCreateRectangle, p.X, p.Y); err != nil {
		return err
	}
	if err := requirePositiveSize(CmdCreateRectangle, p.Width, p.Height); err != nil {
		return err
	}
	return optionalID(CmdCreateRectangle, "parentId", p.ParentID)
}

func (p CreateFrame) Validate() error {
	if err := requirePosition(CmdCreateFrame, p.X, p.Y); err != nil {
		return err
	}
	if err := requirePositiveSize(CmdCreateFrame, p.Width, p.Height); err != nil {
		return err
	}
	if err := optionalID(CmdCreateFrame, "parentId", p.ParentID); err != nil {
		return err
	}
	if p.FillColor != nil {
		if err := p.FillColor.validate(CmdCreateFrame, "fillColor"); err != nil {
			return err
		}
	}
	if p.StrokeColor != nil {
		if err := p.StrokeColor.validate(CmdCreateFrame, "strokeColor"); err != nil {
			return err
		}
	}
	if p.StrokeWeight != nil && !(*p.StrokeWeight >= 0 && !math.IsInf(*p.StrokeWeight, 1)) {
		return invalid(CmdCreateFrame, "strokeWeight", "must not be negative, got %v", *p.StrokeWeight)
	}
	return nil
}

func (p CreateText) Validate() error {
	if p.Text == "" {
		return invalid(CmdCreateText, "text", "is required")
	}
	if err := requirePosition(CmdCreateText, p.X, p.Y); err != nil {
		return err
	}
	if !(p.FontSize >= 0) || math.IsInf(p.FontSize, 1) {
		return invalid(CmdCreateText, "fontSize", "must be positive, got %v", p.FontSize)
	}
	if p.FontWeight != 0 && (p.FontWeight < 100 || p.FontWeight > 900 || p.FontWeight%100 != 0) {
		return invalid(CmdCreateText, "fontWeight", "must be one of 100, 200, ... 900, got %d", p.FontWeight)
	}
	if p.FontColor != nil {
		if err := p.FontColor.validate(CmdCreateText, "fontColor"); err != nil {
			return err
		}
	}
	return optionalID(CmdCreateText, "parentId", p.ParentID)
}

func (p SetFillColor) Validate() error {
	if err := requireID(CmdSetFillColor, "nodeId", p.NodeID); err != nil {
		return err
	}
	return p.Color.validate(CmdSetFillColor, "color")
}

func (p SetStrokeColor) Validate() error {
	if err := requireID(CmdSetStrokeColor, "nodeId", p.NodeID); err != nil {
		return err
	}
	if p.Weight != nil && !(*p.Weight >= 0 && !math.IsInf(*p.Weight, 1)) {
		return invalid(CmdSetStrokeColor, "weight", "must not be negative, got %v", *p.Weight)
	}
	return p.Color.validate(CmdSetStrokeColor, "color")
}

func (p MoveNode) Validate() error {
	if err := requireID(CmdMoveNode, "nodeId", p.NodeID); err != nil {
		return err
	}
	return requirePosition(CmdMoveNode, p.X, p.Y)
}

func (p ResizeNode) Validate() error {
	if err := requireID(CmdResizeNode, "nodeId", p.NodeID); err != nil {
		return err
	}
	return requirePositiveSize(CmdResizeNode, p.Width, p.Height)
}

func (p DeleteNode) Validate() error {
	return requireID(CmdDeleteNode, "nodeId", p.NodeID)
}

func (p CloneNode) Validate() error {
	if err := requireID(CmdCloneNode, "nodeId", p.NodeID); err != nil {
		return err
	}
	if (p.X == nil) != (p.Y == nil) {
		return invalid(CmdCloneNode, "x", "x and y must be given together")
	}
	if p.X != nil {
		return requirePosition(CmdCloneNode, *p.X, *p.Y)
	}
	return nil
}

func (p ExportNodeAsImage) Validate() error {
	if err := requireID(CmdExportNodeAsImage, "nodeId", p.NodeID); err != nil {
		return err
	}
	switch p.Format {
	case "", FormatPNG, FormatJPG, FormatSVG, FormatPDF:
	default:
		return invalid(CmdExportNodeAsImage, "format", "must be PNG, JPG, SVG or PDF, got %q", p.Format)
	}
	if !(p.Scale >= 0 && p.Scale <= maxExportScale) {
		return invalid(CmdExportNodeAsImage, "scale", "must be in (0, %d], got %v", maxExportScale, p.Scale)
	}
	return nil
}

// WithDefaults fills the export format and scale the executor expects.
func (p ExportNodeAsImage) WithDefaults() ExportNodeAsImage {
	if p.Format == "" {
		p.Format = FormatPNG
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	return p
}

func (p ScanTextNodes) Validate() error {
	return requireID(CmdScanTextNodes, "nodeId", p.NodeID)
}

func (p SetTextContent) Validate() error {
	return requireID(CmdSetTextContent, "nodeId", p.NodeID)
}

func (p ApplyTranslations) Validate() error {
	if err := requireID(CmdApplyTranslations, "nodeId", p.NodeID); err != nil {
		return err
	}
	if len(p.Translations) == 0 {
		return invalid(CmdApplyTranslations, "translations", "at least one translation is required")
	}
	for i, tr := range p.Translations {
		if err := requireID(CmdApplyTranslations, fmt.Sprintf("translations[%d].nodeId", i), tr.NodeID); err != nil {
			return err
		}
	}
	return nil
}

func (p Join) Validate() error {
	if strings.TrimSpace(p.Channel) == "" {
		return invalid(CmdJoin, "channel", "is required")
	}
	if strings.TrimSpace(p.Channel) != p.Channel {
		return invalid(CmdJoin, "channel", "must not have leading or trailing whitespace")
	}
	return nil
}

func (c Color) validate(cmd Command, field string) error {
	channels := []struct {
		name  string
		value float64
	}{
		{"r", c.R}, {"g", c.G}, {"b", c.B}, {"a", c.A},
	}
	for _, ch := range channels {
		if !(ch.value >= 0 && ch.value <= 1) {
			return invalid(cmd, field+"."+ch.name, "must be in [0,1], got %v", ch.value)
		}
	}
	return nil
}

func requireID(cmd Command, field, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(cmd, field, "is required")
	}
	return nil
}

func optionalID(cmd Command, field, id string) error {
	if id != "" && strings.TrimSpace(id) == "" {
		return invalid(cmd, field, "must not be blank")
	}
	return nil
}

// requirePositiveSize rejects zero, negative and non-finite sizes. The
// negated comparisons also catch NaN.
func requirePositiveSize(cmd Command, width, height float64) error {
	if !(width > 0) || math.IsInf(width, 1) {
		return invalid(cmd, "width", "must be positive, got %v", width)
	}
	if !(height > 0) || math.IsInf(height, 1) {
		return invalid(cmd, "height", "must be positive, got %v", height)
	}
	return nil
}

func requirePosition(cmd Command, x, y float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return invalid(cmd, "x", "must be finite, got %v", x)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return invalid(cmd, "y", "must be finite, got %v", y)
	}
	return nil
}

// DecodeParams decodes raw wire params into the typed parameter set for cmd.
// Missing params decode to the zero value; validation is left to the caller.
func DecodeParams(cmd Command, raw json.RawMessage) (Params, error) {
	var p Params
	switch cmd {
	case CmdGetDocumentInfo:
		p = &GetDocumentInfo{}
	case CmdGetSelection:
		p = &GetSelection{}
	case CmdGetNodeInfo:
		p = &GetNodeInfo{}
	case CmdGetNodesInfo:
		p = &GetNodesInfo{}
	case CmdCreateRectangle:
		p = &CreateRectangle{}
	case CmdCreateFrame:
		p = &CreateFrame{}
	case CmdCreateText:
		p = &CreateText{}
	case CmdSetFillColor:
		p = &SetFillColor{}
	case CmdSetStrokeColor:
		p = &SetStrokeColor{}
	case CmdMoveNode:
		p = &MoveNode{}
	case CmdResizeNode:
		p = &ResizeNode{}
	case CmdDeleteNode:
		p = &DeleteNode{}
	case CmdCloneNode:
		p = &CloneNode{}
	case CmdExportNodeAsImage:
		p = &ExportNodeAsImage{}
	case CmdScanTextNodes:
		p = &ScanTextNodes{}
	case CmdSetTextContent:
		p = &SetTextContent{}
	case CmdApplyTranslations:
		p = &ApplyTranslations{}
	case CmdJoin:
		p = &Join{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", cmd, err)
		}
	}
	return deref(p), nil
}

// deref returns the value form so callers can type-switch on plain structs.
func deref(p Params) Params {
	switch v := p.(type) {
	case *GetDocumentInfo:
		return *v
	case *GetSelection:
		return *v
	case *GetNodeInfo:
		return *v
	case *GetNodesInfo:
		return *v
	case *CreateRectangle:
		return *v
	case *CreateFrame:
		return *v
	case *CreateText:
		return *v
	case *SetFillColor:
		return *v
	case *SetStrokeColor:
		return *v
	case *MoveNode:
		return *v
	case *ResizeNode:
		return *v
	case *DeleteNode:
		return *v
	case *CloneNode:
		return *v
	case *ExportNodeAsImage:
		return *v
	case *ScanTextNodes:
		return *v
	case *SetTextContent:
		return *v
	case *ApplyTranslations:
		return *v
	case *Join:
		return *v
	}
	return p
}
