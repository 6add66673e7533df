// Package shaders embeds the WGSL sources of every pipeline.
package shaders

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/gogpu/naga"
)

//go:embed frame.wgsl
var frameWGSL string

//go:embed draw.wgsl
var drawWGSL string

//go:embed merge.wgsl
var mergeWGSL string

//go:embed compose.wgsl
var composeWGSL string

//go:embed cursor.wgsl
var cursorWGSL string

// CollectWGSL does not read the frame block.
//
//go:embed collect.wgsl
var CollectWGSL string

//go:embed overlay.wgsl
var OverlayWGSL string

// Sources that use the shared frame uniform get its declaration prepended.
var (
	DrawWGSL    = frameWGSL + drawWGSL
	MergeWGSL   = frameWGSL + mergeWGSL
	ComposeWGSL = frameWGSL + composeWGSL
	CursorWGSL  = frameWGSL + cursorWGSL
)

// All maps a label to each complete shader source.
func All() map[string]string {
	return map[string]string{
		"draw":    DrawWGSL,
		"collect": CollectWGSL,
		"merge":   MergeWGSL,
		"compose": ComposeWGSL,
		"cursor":  CursorWGSL,
		"overlay": OverlayWGSL,
	}
}

// Diagnostic is a shader the offline compiler rejected.
type Diagnostic struct {
	Label string
	Err   error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Label, d.Err)
}

// Validate runs every source through naga's WGSL front end and returns the
// rejects, sorted by label. The device compiler remains the authority;
// naga does not cover every WGSL feature, so callers treat diagnostics as
// warnings.
func Validate() []Diagnostic {
	var out []Diagnostic
	for label, src := range All() {
		if _, err := naga.Compile(src); err != nil {
			out = append(out, Diagnostic{Label: label, Err: err})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
