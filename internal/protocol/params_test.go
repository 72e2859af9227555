package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		field   string
		wantErr bool
	}{
		{"fill color in range", SetFillColor{NodeID: "1:2", Color: Color{R: 1, G: 0.5, B: 0, A: 1}}, "", false},
		{"fill color red above one", SetFillColor{NodeID: "1:2", Color: Color{R: 1.5, G: 0, B: 0, A: 1}}, "color.r", true},
		{"fill color negative alpha", SetFillColor{NodeID: "1:2", Color: Color{A: -0.1}}, "color.a", true},
		{"fill color missing node", SetFillColor{Color: Color{A: 1}}, "nodeId", true},
		{"stroke negative weight", SetStrokeColor{NodeID: "1:2", Color: Color{A: 1}, Weight: floatPtr(-1)}, "weight", true},
		{"rectangle", CreateRectangle{Width: 100, Height: 100}, "", false},
		{"rectangle zero width", CreateRectangle{Width: 0, Height: 100}, "width", true},
		{"rectangle blank parent", CreateRectangle{Width: 1, Height: 1, ParentID: "  "}, "parentId", true},
		{"frame bad fill", CreateFrame{Width: 1, Height: 1, FillColor: &Color{G: 2}}, "fillColor.g", true},
		{"text empty", CreateText{}, "text", true},
		{"text weight", CreateText{Text: "hi", FontWeight: 450}, "fontWeight", true},
		{"text ok", CreateText{Text: "hi", FontWeight: 700, FontSize: 12}, "", false},
		{"resize negative", ResizeNode{NodeID: "1:2", Width: 10, Height: -1}, "height", true},
		{"clone half position", CloneNode{NodeID: "1:2", X: floatPtr(1)}, "x", true},
		{"clone absolute", CloneNode{NodeID: "1:2", X: floatPtr(1), Y: floatPtr(2)}, "", false},
		{"export bad format", ExportNodeAsImage{NodeID: "1:2", Format: "GIF"}, "format", true},
		{"export bad scale", ExportNodeAsImage{NodeID: "1:2", Scale: 8}, "scale", true},
		{"nodes info empty", GetNodesInfo{}, "nodeIds", true},
		{"nodes info blank id", GetNodesInfo{NodeIDs: []string{"1:2", ""}}, "nodeIds[1]", true},
		{"translations empty", ApplyTranslations{NodeID: "1:2"}, "translations", true},
		{"translations blank node", ApplyTranslations{NodeID: "1:2", Translations: []Translation{{Text: "x"}}}, "translations[0].nodeId", true},
		{"join blank", Join{Channel: " "}, "channel", true},
		{"join padded", Join{Channel: " design-1"}, "channel", true},
		{"join ok", Join{Channel: "design-1"}, "", false},
		{"document info", GetDocumentInfo{}, "", false},
		{"fill color NaN", SetFillColor{NodeID: "1:2", Color: Color{R: math.NaN(), A: 1}}, "color.r", true},
		{"frame infinite fill alpha", CreateFrame{Width: 1, Height: 1, FillColor: &Color{A: math.Inf(1)}}, "fillColor.a", true},
		{"rectangle NaN width", CreateRectangle{Width: math.NaN(), Height: 1}, "width", true},
		{"resize infinite height", ResizeNode{NodeID: "1:2", Width: 1, Height: math.Inf(1)}, "height", true},
		{"rectangle infinite x", CreateRectangle{X: math.Inf(-1), Width: 1, Height: 1}, "x", true},
		{"move NaN y", MoveNode{NodeID: "1:2", Y: math.NaN()}, "y", true},
		{"clone NaN position", CloneNode{NodeID: "1:2", X: floatPtr(math.NaN()), Y: floatPtr(0)}, "x", true},
		{"text NaN size", CreateText{Text: "hi", FontSize: math.NaN()}, "fontSize", true},
		{"stroke infinite weight", SetStrokeColor{NodeID: "1:2", Color: Color{A: 1}, Weight: floatPtr(math.Inf(1))}, "weight", true},
		{"export NaN scale", ExportNodeAsImage{NodeID: "1:2", Scale: math.NaN()}, "scale", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
			assert.Equal(t, tt.params.Command(), verr.Command)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCommandSetIsClosed(t *testing.T) {
	for _, cmd := range Commands() {
		p, err := DecodeParams(cmd, nil)
		require.NoError(t, err, "command %s", cmd)
		assert.Equal(t, cmd, p.Command())

		parsed, err := ParseCommand(cmd.String())
		require.NoError(t, err)
		assert.Equal(t, cmd, parsed)
	}

	_, err := ParseCommand("set_corner_radius")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeParams(Command("set_corner_radius"), nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDecodeParamsReturnsValues(t *testing.T) {
	raw := json.RawMessage(`{"nodeId":"1:2","color":{"r":0.2,"g":0.4,"b":0.6,"a":1}}`)
	p, err := DecodeParams(CmdSetFillColor, raw)
	require.NoError(t, err)

	fill, ok := p.(SetFillColor)
	require.True(t, ok, "expected SetFillColor value, got %T", p)
	assert.Equal(t, "1:2", fill.NodeID)
	assert.InDelta(t, 0.4, fill.Color.G, 1e-9)

	_, err = DecodeParams(CmdMoveNode, json.RawMessage(`{"nodeId": 12}`))
	assert.Error(t, err)
}

func TestExportDefaults(t *testing.T) {
	p := ExportNodeAsImage{NodeID: "1:2"}.WithDefaults()
	assert.Equal(t, FormatPNG, p.Format)
	assert.Equal(t, 1.0, p.Scale)

	p = ExportNodeAsImage{NodeID: "1:2", Format: FormatSVG, Scale: 2}.WithDefaults()
	assert.Equal(t, FormatSVG, p.Format)
	assert.Equal(t, 2.0, p.Scale)
}

func TestMutating(t *testing.T) {
	assert.True(t, CmdCreateRectangle.Mutating())
	assert.True(t, CmdApplyTranslations.Mutating())
	assert.False(t, CmdGetSelection.Mutating())
	assert.False(t, CmdJoin.Mutating())
}
