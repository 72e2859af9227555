package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/leonletto/figlink/internal/protocol"
	"github.com/leonletto/figlink/internal/upload"
)

// Node types of the simulated document.
const (
	TypePage      = "PAGE"
	TypeFrame     = "FRAME"
	TypeRectangle = "RECTANGLE"
	TypeText      = "TEXT"
)

// scanChunkSize is how many text nodes are reported per progress update.
const scanChunkSize = 10

// Uploader pushes rendered exports to the image side-channel.
type Uploader interface {
	Upload(ctx context.Context, data []byte, meta upload.Meta) (*upload.Receipt, error)
}

// Node is one element of the simulated document.
type Node struct {
	ID           string
	Name         string
	Type         string
	X, Y         float64
	Width        float64
	Height       float64
	Fill         *protocol.Color
	Stroke       *protocol.Color
	StrokeWeight float64
	Text         string
	FontSize     float64
	FontWeight   int
	ParentID     string
	Children     []string
}

func (n *Node) container() bool {
	return n.Type == TypePage || n.Type == TypeFrame
}

// Document is an in-memory stand-in for a design document. It implements
// Executor for the full command set and is safe for concurrent use.
type Document struct {
	mu        sync.Mutex
	name      string
	pageID    string
	nodes     map[string]*Node
	selection []string
	nextID    int
	uploader  Uploader
}

var errNodeNotFound = errors.New("node not found")

// NewDocument creates a document with one empty page. A nil uploader makes
// exports return inline base64 data.
func NewDocument(name string, uploader Uploader) *Document {
	page := &Node{ID: "0:1", Name: "Page 1", Type: TypePage}
	return &Document{
		name:     name,
		pageID:   page.ID,
		nodes:    map[string]*Node{page.ID: page},
		nextID:   1,
		uploader: uploader,
	}
}

// PageID returns the ID of the document's page.
func (d *Document) PageID() string {
	return d.pageID
}

// Select replaces the current selection.
func (d *Document) Select(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selection = append([]string(nil), ids...)
}

// Node returns a copy of the node with id.
func (d *Document) Node(id string) (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Children = append([]string(nil), n.Children...)
	return cp, true
}

// Execute decodes and validates params, then applies cmd.
func (d *Document) Execute(ctx context.Context, cmd protocol.Command, params json.RawMessage, progress ProgressFunc) (any, error) {
	p, err := protocol.DecodeParams(cmd, params)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(protocol.Progress) {}
	}

	switch v := p.(type) {
	case protocol.GetDocumentInfo:
		return d.documentInfo(), nil
	case protocol.GetSelection:
		return d.selectionInfo(), nil
	case protocol.GetNodeInfo:
		return d.nodeInfo(v.NodeID)
	case protocol.GetNodesInfo:
		return d.nodesInfo(v.NodeIDs)
	case protocol.CreateRectangle:
		return d.create(&Node{
			Type: TypeRectangle, Name: orDefault(v.Name, "Rectangle"),
			X: v.X, Y: v.Y, Width: v.Width, Height: v.Height,
		}, v.ParentID)
	case protocol.CreateFrame:
		n := &Node{
			Type: TypeFrame, Name: orDefault(v.Name, "Frame"),
			X: v.X, Y: v.Y, Width: v.Width, Height: v.Height,
			Fill: v.FillColor, Stroke: v.StrokeColor,
		}
		if v.StrokeWeight != nil {
			n.StrokeWeight = *v.StrokeWeight
		}
		return d.create(n, v.ParentID)
	case protocol.CreateText:
		return d.create(textNode(v), v.ParentID)
	case protocol.SetFillColor:
		return d.update(v.NodeID, func(n *Node) (any, error) {
			c := v.Color
			n.Fill = &c
			return map[string]any{"id": n.ID, "name": n.Name, "fills": paints(n.Fill)}, nil
		})
	case protocol.SetStrokeColor:
		return d.update(v.NodeID, func(n *Node) (any, error) {
			c := v.Color
			n.Stroke = &c
			if v.Weight != nil {
				n.StrokeWeight = *v.Weight
			} else if n.StrokeWeight == 0 {
				n.StrokeWeight = 1
			}
			return map[string]any{"id": n.ID, "name": n.Name, "strokes": paints(n.Stroke), "strokeWeight": n.StrokeWeight}, nil
		})
	case protocol.MoveNode:
		return d.update(v.NodeID, func(n *Node) (any, error) {
			if n.Type == TypePage {
				return nil, fmt.Errorf("cannot move page %s", n.ID)
			}
			n.X, n.Y = v.X, v.Y
			return map[string]any{"id": n.ID, "name": n.Name, "x": n.X, "y": n.Y}, nil
		})
	case protocol.ResizeNode:
		return d.update(v.NodeID, func(n *Node) (any, error) {
			if n.Type == TypePage {
				return nil, fmt.Errorf("cannot resize page %s", n.ID)
			}
			n.Width, n.Height = v.Width, v.Height
			return map[string]any{"id": n.ID, "name": n.Name, "width": n.Width, "height": n.Height}, nil
		})
	case protocol.DeleteNode:
		return d.deleteNode(v.NodeID)
	case protocol.CloneNode:
		return d.clone(v)
	case protocol.ExportNodeAsImage:
		return d.export(ctx, v.WithDefaults())
	case protocol.ScanTextNodes:
		return d.scanText(ctx, v.NodeID, progress)
	case protocol.SetTextContent:
		return d.update(v.NodeID, func(n *Node) (any, error) {
			if n.Type != TypeText {
				return nil, fmt.Errorf("node %s is not a text node", n.ID)
			}
			n.Text = v.Text
			return map[string]any{"id": n.ID, "name": n.Name, "characters": n.Text}, nil
		})
	case protocol.ApplyTranslations:
		return d.applyTranslations(ctx, v, progress)
	case protocol.Join:
		return nil, errors.New("join is handled by the relay")
	}
	return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, cmd)
}

func textNode(v protocol.CreateText) *Node {
	size := v.FontSize
	if size == 0 {
		size = 14
	}
	weight := v.FontWeight
	if weight == 0 {
		weight = 400
	}
	fill := v.FontColor
	if fill == nil {
		fill = &protocol.Color{A: 1}
	}
	lines := strings.Count(v.Text, "\n") + 1
	longest := 0
	for _, line := range strings.Split(v.Text, "\n") {
		longest = max(longest, len([]rune(line)))
	}
	return &Node{
		Type:       TypeText,
		Name:       orDefault(v.Name, v.Text),
		X:          v.X,
		Y:          v.Y,
		Width:      float64(longest) * size * 0.6,
		Height:     float64(lines) * size * 1.2,
		Text:       v.Text,
		FontSize:   size,
		FontWeight: weight,
		Fill:       fill,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (d *Document) newIDLocked() string {
	id := "1:" + strconv.Itoa(d.nextID)
	d.nextID++
	return id
}

func (d *Document) lookupLocked(id string) (*Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNodeNotFound, id)
	}
	return n, nil
}

func (d *Document) create(n *Node, parentID string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if parentID == "" {
		parentID = d.pageID
	}
	parent, err := d.lookupLocked(parentID)
	if err != nil {
		return nil, fmt.Errorf("parent %w", err)
	}
	if !parent.container() {
		return nil, fmt.Errorf("parent node %s does not support children", parentID)
	}

	n.ID = d.newIDLocked()
	n.ParentID = parent.ID
	d.nodes[n.ID] = n
	parent.Children = append(parent.Children, n.ID)
	return d.summaryLocked(n), nil
}

func (d *Document) update(id string, fn func(*Node) (any, error)) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return fn(n)
}

func (d *Document) deleteNode(id string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if n.Type == TypePage {
		return nil, fmt.Errorf("cannot delete page %s", id)
	}
	if parent, ok := d.nodes[n.ParentID]; ok {
		parent.Children = removeID(parent.Children, id)
	}
	d.removeSubtreeLocked(n)
	d.selection = removeID(d.selection, id)
	return map[string]any{"id": n.ID, "name": n.Name, "type": n.Type}, nil
}

func (d *Document) removeSubtreeLocked(n *Node) {
	for _, cid := range n.Children {
		if c, ok := d.nodes[cid]; ok {
			d.removeSubtreeLocked(c)
		}
	}
	delete(d.nodes, n.ID)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (d *Document) clone(v protocol.CloneNode) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, err := d.lookupLocked(v.NodeID)
	if err != nil {
		return nil, err
	}
	if src.Type == TypePage {
		return nil, fmt.Errorf("cannot clone page %s", src.ID)
	}
	parent, ok := d.nodes[src.ParentID]
	if !ok {
		return nil, fmt.Errorf("parent %w: %s", errNodeNotFound, src.ParentID)
	}

	cp := d.copySubtreeLocked(src, parent.ID)
	if v.X != nil && v.Y != nil {
		cp.X, cp.Y = *v.X, *v.Y
	}
	parent.Children = append(parent.Children, cp.ID)
	return d.summaryLocked(cp), nil
}

func (d *Document) copySubtreeLocked(src *Node, parentID string) *Node {
	cp := *src
	cp.ID = d.newIDLocked()
	cp.ParentID = parentID
	cp.Children = nil
	d.nodes[cp.ID] = &cp
	for _, cid := range src.Children {
		if c, ok := d.nodes[cid]; ok {
			child := d.copySubtreeLocked(c, cp.ID)
			cp.Children = append(cp.Children, child.ID)
		}
	}
	return &cp
}

// absoluteLocked returns the canvas position of n. Child positions are
// relative to their parent frame.
func (d *Document) absoluteLocked(n *Node) (float64, float64) {
	x, y := n.X, n.Y
	for p, ok := d.nodes[n.ParentID]; ok && p.Type != TypePage; p, ok = d.nodes[p.ParentID] {
		x += p.X
		y += p.Y
	}
	return x, y
}

func (d *Document) summaryLocked(n *Node) map[string]any {
	out := map[string]any{
		"id":       n.ID,
		"name":     n.Name,
		"type":     n.Type,
		"x":        n.X,
		"y":        n.Y,
		"width":    n.Width,
		"height":   n.Height,
		"parentId": n.ParentID,
	}
	if n.Type == TypeText {
		out["characters"] = n.Text
	}
	return out
}

func paints(c *protocol.Color) []map[string]any {
	if c == nil {
		return []map[string]any{}
	}
	return []map[string]any{{"type": "SOLID", "color": c, "opacity": c.A}}
}

func (d *Document) infoLocked(n *Node) map[string]any {
	out := map[string]any{
		"id":   n.ID,
		"name": n.Name,
		"type": n.Type,
	}
	if n.Type != TypePage {
		ax, ay := d.absoluteLocked(n)
		out["x"] = n.X
		out["y"] = n.Y
		out["width"] = n.Width
		out["height"] = n.Height
		out["absoluteBoundingBox"] = map[string]float64{"x": ax, "y": ay, "width": n.Width, "height": n.Height}
		out["fills"] = paints(n.Fill)
		out["strokes"] = paints(n.Stroke)
		if n.Stroke != nil {
			out["strokeWeight"] = n.StrokeWeight
		}
	}
	if n.Type == TypeText {
		out["characters"] = n.Text
		out["style"] = map[string]any{"fontSize": n.FontSize, "fontWeight": n.FontWeight}
	}
	if n.container() {
		children := make([]map[string]any, 0, len(n.Children))
		for _, cid := range n.Children {
			if c, ok := d.nodes[cid]; ok {
				children = append(children, d.infoLocked(c))
			}
		}
		out["children"] = children
	}
	return out
}

func (d *Document) documentInfo() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	page := d.nodes[d.pageID]
	children := make([]map[string]any, 0, len(page.Children))
	for _, cid := range page.Children {
		c := d.nodes[cid]
		children = append(children, map[string]any{"id": c.ID, "name": c.Name, "type": c.Type})
	}
	pageInfo := map[string]any{"id": page.ID, "name": page.Name, "childCount": len(page.Children)}
	return map[string]any{
		"name":        d.name,
		"id":          page.ID,
		"type":        page.Type,
		"children":    children,
		"currentPage": pageInfo,
		"pages":       []map[string]any{pageInfo},
	}
}

func (d *Document) selectionInfo() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := make([]map[string]any, 0, len(d.selection))
	for _, id := range d.selection {
		if n, ok := d.nodes[id]; ok {
			sel = append(sel, map[string]any{"id": n.ID, "name": n.Name, "type": n.Type, "visible": true})
		}
	}
	return map[string]any{"selectionCount": len(sel), "selection": sel}
}

func (d *Document) nodeInfo(id string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return d.infoLocked(n), nil
}

func (d *Document) nodesInfo(ids []string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		n, err := d.lookupLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"nodeId": id, "document": d.infoLocked(n)})
	}
	return out, nil
}

type textEntry struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Characters string  `json:"characters"`
	FontSize   float64 `json:"fontSize"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Path       string  `json:"path"`
}

func (d *Document) collectTextLocked(n *Node, path []string, out *[]textEntry) {
	path = append(path, n.Name)
	if n.Type == TypeText {
		ax, ay := d.absoluteLocked(n)
		*out = append(*out, textEntry{
			ID: n.ID, Name: n.Name, Characters: n.Text, FontSize: n.FontSize,
			X: ax, Y: ay, Width: n.Width, Height: n.Height,
			Path: strings.Join(path, " > "),
		})
	}
	for _, cid := range n.Children {
		if c, ok := d.nodes[cid]; ok {
			d.collectTextLocked(c, path, out)
		}
	}
}

func (d *Document) scanText(ctx context.Context, rootID string, progress ProgressFunc) (any, error) {
	d.mu.Lock()
	root, err := d.lookupLocked(rootID)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	var found []textEntry
	d.collectTextLocked(root, nil, &found)
	d.mu.Unlock()

	total := len(found)
	progress(protocol.Progress{Status: "started", Percent: 0, Total: total, Message: fmt.Sprintf("Scanning %s", rootID)})
	for start := 0; start < total; start += scanChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		done := min(start+scanChunkSize, total)
		progress(protocol.Progress{
			Status:    "in_progress",
			Percent:   done * 100 / total,
			Processed: done,
			Total:     total,
			Message:   fmt.Sprintf("Processed %d of %d text nodes", done, total),
		})
	}
	progress(protocol.Progress{Status: "completed", Percent: 100, Processed: total, Total: total, Message: "Scan complete"})

	if found == nil {
		found = []textEntry{}
	}
	return map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Scanned %d text nodes", total),
		"count":     total,
		"textNodes": found,
	}, nil
}

type translationResult struct {
	NodeID  string `json:"nodeId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (d *Document) applyTranslations(ctx context.Context, v protocol.ApplyTranslations, progress ProgressFunc) (any, error) {
	d.mu.Lock()
	root, err := d.lookupLocked(v.NodeID)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	var inScope []textEntry
	d.collectTextLocked(root, nil, &inScope)
	d.mu.Unlock()

	scope := make(map[string]bool, len(inScope))
	for _, e := range inScope {
		scope[e.ID] = true
	}

	total := len(v.Translations)
	results := make([]translationResult, 0, total)
	applied := 0
	for i, tr := range v.Translations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := translationResult{NodeID: tr.NodeID}
		if !scope[tr.NodeID] {
			res.Error = fmt.Sprintf("text node %s not found under %s", tr.NodeID, v.NodeID)
		} else if _, err := d.update(tr.NodeID, func(n *Node) (any, error) {
			n.Text = tr.Text
			return nil, nil
		}); err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
			applied++
		}
		results = append(results, res)
		progress(protocol.Progress{
			Status:    "in_progress",
			Percent:   (i + 1) * 100 / total,
			Processed: i + 1,
			Total:     total,
			Message:   fmt.Sprintf("Applied %d of %d translations", i+1, total),
		})
	}

	return map[string]any{
		"success":             applied == total,
		"nodeId":              v.NodeID,
		"replacementsApplied": applied,
		"replacementsFailed":  total - applied,
		"totalReplacements":   total,
		"results":             results,
	}, nil
}
