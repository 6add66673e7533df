package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScene_Order(t *testing.T) {
	plan := ScenePlan()
	assert.Equal(t, []string{PassClearTouch, PassPrimary, PassCollect, PassMerge, PassCompose}, plan.Order())

	assert.Equal(t, []string{PassClearTouch, PassPrimary}, plan.Deps(PassCollect))
	assert.Equal(t, []string{PassCollect}, plan.Deps(PassMerge))
	assert.Equal(t, []string{PassPrimary, PassMerge}, plan.Deps(PassCompose))

	// compute strictly between the two render passes
	assert.True(t, plan.DependsOn(PassCollect, PassPrimary))
	assert.True(t, plan.DependsOn(PassMerge, PassPrimary))
	assert.True(t, plan.DependsOn(PassCompose, PassMerge))
	assert.True(t, plan.DependsOn(PassCompose, PassCollect))
	assert.False(t, plan.DependsOn(PassPrimary, PassMerge))
}

func TestScene_Stages(t *testing.T) {
	plan := ScenePlan()
	names := func(ps []*Pass) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}
	assert.Equal(t, []string{PassClearTouch, PassPrimary, PassCompose}, names(plan.InStage(StageRecording)))
	assert.Equal(t, []string{PassCollect, PassMerge}, names(plan.InStage(StageDispatching)))

	var sized []string
	for _, r := range plan.Sized() {
		sized = append(sized, r.Name)
	}
	assert.Equal(t, []string{ResTag, ResMask, ResDepth}, sized)
	assert.Equal(t, []string{SubDraw, SubEraser}, plan.Pass(PassPrimary).Subpasses)
}

func TestCompile_WriteAfterRead(t *testing.T) {
	g := New().
		AddResource(Resource{Name: "a", Persistent: true}).
		AddPass(Pass{Name: "reader", Reads: []string{"a"}}).
		AddPass(Pass{Name: "writer", Writes: []string{"a"}})
	plan, err := g.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"reader"}, plan.Deps("writer"))
	assert.Equal(t, []string{"reader", "writer"}, plan.Order())
}

func TestCompile_StableForIndependentPasses(t *testing.T) {
	g := New().
		AddResource(Resource{Name: "x"}).
		AddResource(Resource{Name: "y"}).
		AddPass(Pass{Name: "late", Reads: []string{"x"}}).
		AddPass(Pass{Name: "wy", Writes: []string{"y"}}).
		AddPass(Pass{Name: "wx", Writes: []string{"x"}, After: []string{"wy"}})
	_, err := g.Compile()
	require.ErrorIs(t, err, ErrUnwritten)

	g = New().
		AddResource(Resource{Name: "x"}).
		AddPass(Pass{Name: "b", Writes: []string{"x"}}).
		AddPass(Pass{Name: "a"}).
		AddPass(Pass{Name: "c", Reads: []string{"x"}})
	plan, err := g.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, plan.Order())
}

func TestCompile_Errors(t *testing.T) {
	_, err := New().AddPass(Pass{Name: "p", Reads: []string{"nope"}}).Compile()
	assert.ErrorIs(t, err, ErrUnknownResource)

	_, err = New().AddPass(Pass{Name: "p", Writes: []string{"nope"}}).Compile()
	assert.ErrorIs(t, err, ErrUnknownResource)

	_, err = New().AddPass(Pass{Name: "p", After: []string{"q"}}).Compile()
	assert.ErrorIs(t, err, ErrUnknownPass)

	_, err = New().
		AddPass(Pass{Name: "p", After: []string{"q"}}).
		AddPass(Pass{Name: "q", After: []string{"p"}}).
		Compile()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestGraph_DuplicatesPanic(t *testing.T) {
	assert.Panics(t, func() {
		New().AddResource(Resource{Name: "a"}).AddResource(Resource{Name: "a"})
	})
	assert.Panics(t, func() {
		New().AddPass(Pass{Name: "a"}).AddPass(Pass{Name: "a"})
	})
}

func TestToken(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Fired())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tok.Wait(ctx), context.DeadlineExceeded)

	tok.Signal()
	tok.Signal()
	assert.True(t, tok.Fired())
	assert.NoError(t, tok.Wait(ctx))
	select {
	case <-tok.Done():
	default:
		t.Errorf("Done channel should be closed after Signal")
	}
}

func TestPlan_RunRespectsDependencies(t *testing.T) {
	plan := ScenePlan()

	var mu sync.Mutex
	var ran []string
	err := plan.Run(context.Background(), func(ctx context.Context, p *Pass) error {
		// widen the race window for independent passes
		if p.Name == PassClearTouch {
			time.Sleep(5 * time.Millisecond)
		}
		mu.Lock()
		ran = append(ran, p.Name)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, ran, 5)

	pos := make(map[string]int)
	for i, n := range ran {
		pos[n] = i
	}
	for _, name := range plan.Order() {
		for _, d := range plan.Deps(name) {
			assert.Less(t, pos[d], pos[name], "%s ran before its dependency %s", name, d)
		}
	}
}

func TestPlan_RunStopsOnError(t *testing.T) {
	plan := ScenePlan()
	boom := errors.New("boom")

	var mu sync.Mutex
	ran := map[string]bool{}
	err := plan.Run(context.Background(), func(ctx context.Context, p *Pass) error {
		mu.Lock()
		ran[p.Name] = true
		mu.Unlock()
		if p.Name == PassCollect {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), PassCollect)
	assert.False(t, ran[PassMerge])
	assert.False(t, ran[PassCompose])
}
