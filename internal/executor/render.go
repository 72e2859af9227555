package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/leonletto/figlink/internal/protocol"
	"github.com/leonletto/figlink/internal/upload"
)

// maxRenderSide caps raster exports so a huge node cannot exhaust memory.
const maxRenderSide = 4096

var mimeTypes = map[string]string{
	protocol.FormatPNG: "image/png",
	protocol.FormatJPG: "image/jpeg",
	protocol.FormatSVG: "image/svg+xml",
}

// export renders a node and hands the bytes to the upload side-channel.
func (d *Document) export(ctx context.Context, p protocol.ExportNodeAsImage) (any, error) {
	mimeType, ok := mimeTypes[p.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format: %s", p.Format)
	}

	d.mu.Lock()
	n, err := d.lookupLocked(p.NodeID)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if n.Type == TypePage {
		d.mu.Unlock()
		return nil, fmt.Errorf("cannot export page %s", n.ID)
	}
	snapshot := d.renderTreeLocked(n, 0, 0)
	d.mu.Unlock()

	var data []byte
	switch p.Format {
	case protocol.FormatSVG:
		data = renderSVG(snapshot, p.Scale)
	default:
		data, err = renderRaster(snapshot, p.Format, p.Scale)
		if err != nil {
			return nil, err
		}
	}

	out := map[string]any{
		"nodeId":   p.NodeID,
		"format":   p.Format,
		"scale":    p.Scale,
		"mimeType": mimeType,
		"size":     len(data),
	}
	if d.uploader == nil {
		out["imageData"] = base64.StdEncoding.EncodeToString(data)
		return out, nil
	}

	receipt, err := d.uploader.Upload(ctx, data, upload.Meta{
		MimeType: mimeType,
		NodeID:   p.NodeID,
		Format:   p.Format,
		Scale:    p.Scale,
	})
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}
	out["imageUrl"] = receipt.URL
	out["imageId"] = receipt.ID
	return out, nil
}

// shape is a flattened node positioned relative to the exported root.
type shape struct {
	x, y, w, h float64
	fill       *protocol.Color
	stroke     *protocol.Color
	weight     float64
	text       string
	fontSize   float64
	children   []shape
}

func (d *Document) renderTreeLocked(n *Node, x, y float64) shape {
	s := shape{
		x: x, y: y, w: n.Width, h: n.Height,
		fill: n.Fill, stroke: n.Stroke, weight: n.StrokeWeight,
	}
	if n.Type == TypeText {
		s.text = n.Text
		s.fontSize = n.FontSize
	}
	for _, cid := range n.Children {
		if c, ok := d.nodes[cid]; ok {
			s.children = append(s.children, d.renderTreeLocked(c, x+c.X, y+c.Y))
		}
	}
	return s
}

func toRGBA(c *protocol.Color) color.NRGBA {
	return color.NRGBA{
		R: uint8(math.Round(c.R * 255)),
		G: uint8(math.Round(c.G * 255)),
		B: uint8(math.Round(c.B * 255)),
		A: uint8(math.Round(c.A * 255)),
	}
}

func scaled(v, scale float64) int {
	return int(math.Round(v * scale))
}

func renderRaster(root shape, format string, scale float64) ([]byte, error) {
	w := min(max(scaled(root.w, scale), 1), maxRenderSide)
	h := min(max(scaled(root.h, scale), 1), maxRenderSide)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	if format == protocol.FormatJPG {
		draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	}
	paintShape(img, root, scale)

	var buf bytes.Buffer
	var err error
	if format == protocol.FormatJPG {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func paintShape(img draw.Image, s shape, scale float64) {
	r := image.Rect(scaled(s.x, scale), scaled(s.y, scale), scaled(s.x+s.w, scale), scaled(s.y+s.h, scale))
	if s.fill != nil && s.text == "" {
		draw.Draw(img, r, image.NewUniform(toRGBA(s.fill)), image.Point{}, draw.Over)
	}
	if s.stroke != nil && s.weight > 0 {
		sw := max(scaled(s.weight, scale), 1)
		src := image.NewUniform(toRGBA(s.stroke))
		for _, edge := range []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+sw),
			image.Rect(r.Min.X, r.Max.Y-sw, r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+sw, r.Max.Y),
			image.Rect(r.Max.X-sw, r.Min.Y, r.Max.X, r.Max.Y),
		} {
			draw.Draw(img, edge, src, image.Point{}, draw.Over)
		}
	}
	for _, c := range s.children {
		paintShape(img, c, scale)
	}
}

// svgPaint returns the attributes painting c as attr (fill or stroke).
func svgPaint(attr string, c *protocol.Color) string {
	if c == nil {
		return attr + `="none"`
	}
	rgba := toRGBA(c)
	return fmt.Sprintf(`%s="rgb(%d,%d,%d)" %s-opacity="%.3g"`, attr, rgba.R, rgba.G, rgba.B, attr, c.A)
}

func renderSVG(root shape, scale float64) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%g" height="%g" viewBox="0 0 %g %g">`,
		root.w*scale, root.h*scale, root.w, root.h)
	writeSVGShape(&b, root)
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

func writeSVGShape(b *strings.Builder, s shape) {
	switch {
	case s.text != "":
		fill := s.fill
		if fill == nil {
			fill = &protocol.Color{A: 1}
		}
		fmt.Fprintf(b, `<text x="%g" y="%g" font-size="%g" %s>%s</text>`,
			s.x, s.y+s.fontSize, s.fontSize, svgPaint("fill", fill), html.EscapeString(s.text))
	case s.fill != nil || s.stroke != nil:
		fmt.Fprintf(b, `<rect x="%g" y="%g" width="%g" height="%g" %s`, s.x, s.y, s.w, s.h, svgPaint("fill", s.fill))
		if s.stroke != nil {
			fmt.Fprintf(b, ` %s stroke-width="%g"`, svgPaint("stroke", s.stroke), s.weight)
		}
		b.WriteString(`/>`)
	}
	for _, c := range s.children {
		writeSVGShape(b, c)
	}
}
