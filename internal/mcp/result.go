package mcp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leonletto/figlink/internal/gateway"
	"github.com/leonletto/figlink/internal/protocol"
)

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

// jsonResult renders a summary line followed by v as indented JSON.
func jsonResult(summary string, v any) *gomcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textResult(summary)
	}
	return textResult(summary + "\n\n" + string(data))
}

// successResult renders a command result as a summary plus the raw payload.
// Inline image exports are attached as image content as well.
func successResult(cmd protocol.Command, raw json.RawMessage) *gomcp.CallToolResult {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	res := textResult(summarize(cmd, raw) + "\n\n" + pretty.String())
	if img := inlineImage(raw); img != nil {
		res.Content = append(res.Content, img)
	}
	return res
}

// errorResult renders a failed call. The text names the failure class so the
// agent can tell a bad argument from a dropped relay or a design-tool error.
func errorResult(cmd protocol.Command, err error) *gomcp.CallToolResult {
	var (
		verr *protocol.ValidationError
		terr *gateway.TimeoutError
		rerr *gateway.RemoteError
		text string
	)
	switch {
	case errors.As(err, &verr):
		text = fmt.Sprintf("Invalid arguments for %s: %v", cmd, err)
	case errors.Is(err, gateway.ErrNotConnected):
		text = fmt.Sprintf("Cannot run %s: %v", cmd, err)
	case errors.Is(err, gateway.ErrNoChannel):
		text = fmt.Sprintf("Cannot run %s: %v", cmd, err)
	case errors.As(err, &terr):
		text = fmt.Sprintf("Timed out running %s: %v", cmd, err)
	case errors.As(err, &rerr):
		text = fmt.Sprintf("Figma reported an error for %s: %v", cmd, err)
	case errors.Is(err, gateway.ErrConnectionClosed):
		text = fmt.Sprintf("Relay connection lost while running %s: %v", cmd, err)
	default:
		text = fmt.Sprintf("Error running %s: %v", cmd, err)
	}
	res := textResult(text)
	res.IsError = true
	return res
}

type resultShape struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Count          *int   `json:"count"`
	SelectionCount *int   `json:"selectionCount"`
	Applied        *int   `json:"replacementsApplied"`
	Total          *int   `json:"totalReplacements"`
	ImageURL       string `json:"imageUrl"`
}

// summarize builds the one-line description of a successful result.
func summarize(cmd protocol.Command, raw json.RawMessage) string {
	var r resultShape
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Sprintf("%s completed", cmd)
	}

	switch cmd {
	case protocol.CmdCreateRectangle, protocol.CmdCreateFrame, protocol.CmdCreateText:
		return fmt.Sprintf("Created %s %q with ID: %s", r.Type, r.Name, r.ID)
	case protocol.CmdCloneNode:
		return fmt.Sprintf("Cloned node as %q with ID: %s", r.Name, r.ID)
	case protocol.CmdDeleteNode:
		return fmt.Sprintf("Deleted node %q (%s)", r.Name, r.ID)
	case protocol.CmdGetSelection:
		if r.SelectionCount != nil {
			return fmt.Sprintf("%d node(s) selected", *r.SelectionCount)
		}
	case protocol.CmdScanTextNodes:
		if r.Count != nil {
			return fmt.Sprintf("Found %d text node(s)", *r.Count)
		}
	case protocol.CmdApplyTranslations:
		if r.Applied != nil && r.Total != nil {
			return fmt.Sprintf("Applied %d of %d translation(s)", *r.Applied, *r.Total)
		}
	case protocol.CmdExportNodeAsImage:
		if r.ImageURL != "" {
			return "Exported image: " + r.ImageURL
		}
		return "Exported image"
	}
	if r.ID != "" {
		return fmt.Sprintf("%s completed for %q (%s)", cmd, r.Name, r.ID)
	}
	return fmt.Sprintf("%s completed", cmd)
}

// inlineImage returns image content for an export that carried its bytes
// inline instead of through the upload side-channel.
func inlineImage(raw json.RawMessage) gomcp.Content {
	var r struct {
		ImageData string `json:"imageData"`
		MimeType  string `json:"mimeType"`
	}
	if json.Unmarshal(raw, &r) != nil || r.ImageData == "" || r.MimeType == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(r.ImageData)
	if err != nil {
		return nil
	}
	return &gomcp.ImageContent{Data: data, MIMEType: r.MimeType}
}
