package shaders

import (
	"strings"
	"testing"

	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_Embedded(t *testing.T) {
	for label, src := range All() {
		assert.NotEmpty(t, src, label)
	}
	assert.True(t, strings.HasPrefix(DrawWGSL, "struct Frame"))
	assert.Contains(t, DrawWGSL, "fn fs_draw")
	assert.Contains(t, DrawWGSL, "fn fs_eraser")
	assert.Contains(t, CollectWGSL, "atomicAdd(&touch[g], 1u)")
	assert.Contains(t, MergeWGSL, "@workgroup_size(64)")
	assert.NotContains(t, CollectWGSL, "struct Frame")
}

func TestSources_CompileWithNaga(t *testing.T) {
	for label, src := range All() {
		t.Run(label, func(t *testing.T) {
			spirv, err := naga.Compile(src)
			if err != nil {
				// naga's WGSL front end trails the device compilers.
				t.Skipf("%s: naga limitation: %v", label, err)
			}
			require.GreaterOrEqual(t, len(spirv), 4)
			magic := uint32(spirv[0]) | uint32(spirv[1])<<8 | uint32(spirv[2])<<16 | uint32(spirv[3])<<24
			assert.Equal(t, uint32(0x07230203), magic)
		})
	}
}

func TestValidate_SortedLabels(t *testing.T) {
	diags := Validate()
	for i := 1; i < len(diags); i++ {
		assert.Less(t, diags[i-1].Label, diags[i].Label)
	}
	for _, d := range diags {
		assert.NotEmpty(t, d.String())
	}
}
