package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/protocol"
)

// send forwards p through the gateway and renders the outcome.
func (s *Server) send(ctx context.Context, p protocol.Params) (*gomcp.CallToolResult, any, error) {
	raw, err := s.gw.Send(ctx, p)
	if err != nil {
		s.log.Debug("command failed", zap.String("command", p.Command().String()), zap.Error(err))
		return errorResult(p.Command(), err), nil, nil
	}
	return successResult(p.Command(), raw), nil, nil
}

func (s *Server) handleJoinChannel(ctx context.Context, _ *gomcp.CallToolRequest, input JoinChannelInput) (*gomcp.CallToolResult, any, error) {
	if err := s.gw.Join(ctx, input.Channel); err != nil {
		return errorResult(protocol.CmdJoin, err), nil, nil
	}
	return textResult(fmt.Sprintf("Joined channel: %s", input.Channel)), nil, nil
}

func (s *Server) handleConnectionStatus(_ context.Context, _ *gomcp.CallToolRequest, _ EmptyInput) (*gomcp.CallToolResult, any, error) {
	st := s.gw.Status()
	summary := fmt.Sprintf("Relay %s: %s", st.RelayURL, st.State)
	if st.Channel != "" {
		summary += fmt.Sprintf(", channel %q", st.Channel)
	}
	summary += fmt.Sprintf(", %d pending", st.Pending)
	return jsonResult(summary, st), nil, nil
}

func (s *Server) handleDocumentInfo(ctx context.Context, _ *gomcp.CallToolRequest, _ EmptyInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.GetDocumentInfo{})
}

func (s *Server) handleSelection(ctx context.Context, _ *gomcp.CallToolRequest, _ EmptyInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.GetSelection{})
}

func (s *Server) handleNodeInfo(ctx context.Context, _ *gomcp.CallToolRequest, input NodeInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.GetNodeInfo{NodeID: input.NodeID})
}

func (s *Server) handleNodesInfo(ctx context.Context, _ *gomcp.CallToolRequest, input NodesInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.GetNodesInfo{NodeIDs: input.NodeIDs})
}

func (s *Server) handleCreateRectangle(ctx context.Context, _ *gomcp.CallToolRequest, input CreateRectangleInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.CreateRectangle{
		X:        input.X,
		Y:        input.Y,
		Width:    input.Width,
		Height:   input.Height,
		Name:     input.Name,
		ParentID: input.ParentID,
	})
}

func (s *Server) handleCreateFrame(ctx context.Context, _ *gomcp.CallToolRequest, input CreateFrameInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.CreateFrame{
		X:            input.X,
		Y:            input.Y,
		Width:        input.Width,
		Height:       input.Height,
		Name:         input.Name,
		ParentID:     input.ParentID,
		FillColor:    input.FillColor.color(),
		StrokeColor:  input.StrokeColor.color(),
		StrokeWeight: input.StrokeWeight,
	})
}

func (s *Server) handleCreateText(ctx context.Context, _ *gomcp.CallToolRequest, input CreateTextInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.CreateText{
		X:          input.X,
		Y:          input.Y,
		Text:       input.Text,
		FontSize:   input.FontSize,
		FontWeight: input.FontWeight,
		FontColor:  input.FontColor.color(),
		Name:       input.Name,
		ParentID:   input.ParentID,
	})
}

func (s *Server) handleSetFillColor(ctx context.Context, _ *gomcp.CallToolRequest, input SetColorInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.SetFillColor{NodeID: input.NodeID, Color: input.color()})
}

func (s *Server) handleSetStrokeColor(ctx context.Context, _ *gomcp.CallToolRequest, input SetStrokeInput) (*gomcp.CallToolResult, any, error) {
	c := ColorInput{R: input.R, G: input.G, B: input.B, A: input.A}
	return s.send(ctx, protocol.SetStrokeColor{NodeID: input.NodeID, Color: *c.color(), Weight: input.Weight})
}

func (s *Server) handleMoveNode(ctx context.Context, _ *gomcp.CallToolRequest, input MoveNodeInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.MoveNode{NodeID: input.NodeID, X: input.X, Y: input.Y})
}

func (s *Server) handleResizeNode(ctx context.Context, _ *gomcp.CallToolRequest, input ResizeNodeInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.ResizeNode{NodeID: input.NodeID, Width: input.Width, Height: input.Height})
}

func (s *Server) handleDeleteNode(ctx context.Context, _ *gomcp.CallToolRequest, input NodeInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.DeleteNode{NodeID: input.NodeID})
}

// handleCloneNode lets the gateway resolve offsets into an absolute position.
func (s *Server) handleCloneNode(ctx context.Context, _ *gomcp.CallToolRequest, input CloneNodeInput) (*gomcp.CallToolResult, any, error) {
	var offset *protocol.Point
	if input.X != nil || input.Y != nil {
		offset = &protocol.Point{}
		if input.X != nil {
			offset.X = *input.X
		}
		if input.Y != nil {
			offset.Y = *input.Y
		}
	}
	raw, err := s.gw.CloneNode(ctx, input.NodeID, offset)
	if err != nil {
		return errorResult(protocol.CmdCloneNode, err), nil, nil
	}
	return successResult(protocol.CmdCloneNode, raw), nil, nil
}

func (s *Server) handleExport(ctx context.Context, _ *gomcp.CallToolRequest, input ExportInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.ExportNodeAsImage{NodeID: input.NodeID, Format: input.Format, Scale: input.Scale})
}

func (s *Server) handleScanText(ctx context.Context, _ *gomcp.CallToolRequest, input NodeInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.ScanTextNodes{NodeID: input.NodeID})
}

func (s *Server) handleSetText(ctx context.Context, _ *gomcp.CallToolRequest, input SetTextInput) (*gomcp.CallToolResult, any, error) {
	return s.send(ctx, protocol.SetTextContent{NodeID: input.NodeID, Text: input.Text})
}

func (s *Server) handleTranslations(ctx context.Context, _ *gomcp.CallToolRequest, input TranslationsInput) (*gomcp.CallToolResult, any, error) {
	p := protocol.ApplyTranslations{NodeID: input.NodeID}
	for _, tr := range input.Translations {
		p.Translations = append(p.Translations, protocol.Translation{NodeID: tr.NodeID, Text: tr.Text})
	}
	return s.send(ctx, p)
}
