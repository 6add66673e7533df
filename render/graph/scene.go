package graph

// Resource names of the frame graph.
const (
	ResTag       = "tag"
	ResMask      = "mask"
	ResDepth     = "depth"
	ResTouch     = "touch"
	ResDecay     = "decay"
	ResSwapchain = "swapchain"
)

// Pass names of the frame graph.
const (
	PassClearTouch = "clear-touch"
	PassPrimary    = "primary"
	PassCollect    = "collect"
	PassMerge      = "merge"
	PassCompose    = "compose"
)

// Subpass names.
const (
	SubDraw      = "draw"
	SubEraser    = "eraser"
	SubComposite = "composite"
	SubCursor    = "cursor"
	SubOverlay   = "overlay"
)

// Scene declares the frame graph:
//
//	clear-touch ─┐
//	primary ─────┴─ collect ── merge ── compose
//
// The primary pass draws scene geometry into the tag and depth attachments,
// then rasterizes erasers into the mask. Collect turns masked pixels into
// touch counts, merge folds them into decay, and compose shades the
// swapchain image from tag and decay before drawing cursor and overlay.
func Scene() *Graph {
	g := New()
	g.AddResource(Resource{Name: ResTag, Sized: true}).
		AddResource(Resource{Name: ResMask, Sized: true}).
		AddResource(Resource{Name: ResDepth, Sized: true}).
		AddResource(Resource{Name: ResTouch}).
		AddResource(Resource{Name: ResDecay, Persistent: true}).
		AddResource(Resource{Name: ResSwapchain, External: true})

	g.AddPass(Pass{
		Name:   PassClearTouch,
		Kind:   Transfer,
		Writes: []string{ResTouch},
	}).AddPass(Pass{
		Name:      PassPrimary,
		Kind:      Render,
		Subpasses: []string{SubDraw, SubEraser},
		Writes:    []string{ResTag, ResMask, ResDepth},
	}).AddPass(Pass{
		Name:   PassCollect,
		Kind:   Compute,
		Reads:  []string{ResTag, ResMask, ResTouch},
		Writes: []string{ResTouch},
	}).AddPass(Pass{
		Name:   PassMerge,
		Kind:   Compute,
		Reads:  []string{ResTouch, ResDecay},
		Writes: []string{ResDecay},
	}).AddPass(Pass{
		Name:      PassCompose,
		Kind:      Render,
		Subpasses: []string{SubComposite, SubCursor, SubOverlay},
		Reads:     []string{ResTag, ResDecay},
		Writes:    []string{ResSwapchain},
	})
	return g
}

// ScenePlan compiles Scene. The declaration is static, so failure is a
// programming error.
func ScenePlan() *Plan {
	plan, err := Scene().Compile()
	if err != nil {
		panic(err)
	}
	return plan
}
