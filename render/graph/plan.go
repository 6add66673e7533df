package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Stage is the frame scheduler state a pass is recorded in.
type Stage int

const (
	StageRecording Stage = iota
	StageDispatching
)

// Plan is a compiled graph: passes in a valid execution order plus the
// dependency edges between them.
type Plan struct {
	order     []string
	passes    map[string]*Pass
	deps      map[string][]string
	resources []Resource
}

// Order lists pass names in execution order.
func (p *Plan) Order() []string {
	return p.order
}

func (p *Plan) Pass(name string) *Pass {
	return p.passes[name]
}

// Deps lists the passes that must complete before name runs.
func (p *Plan) Deps(name string) []string {
	return p.deps[name]
}

// DependsOn reports whether a is ordered after b, directly or
// transitively.
func (p *Plan) DependsOn(a, b string) bool {
	seen := make(map[string]bool)
	var walk func(string) bool
	walk = func(n string) bool {
		for _, d := range p.deps[n] {
			if d == b {
				return true
			}
			if !seen[d] {
				seen[d] = true
				if walk(d) {
					return true
				}
			}
		}
		return false
	}
	return walk(a)
}

// Stage returns the scheduler state that records the pass. Compute work is
// dispatched after all render and transfer recording.
func (p *Plan) Stage(name string) Stage {
	if pass := p.passes[name]; pass != nil && pass.Kind == Compute {
		return StageDispatching
	}
	return StageRecording
}

// InStage lists the passes of stage s in execution order.
func (p *Plan) InStage(s Stage) []*Pass {
	var out []*Pass
	for _, name := range p.order {
		if p.Stage(name) == s {
			out = append(out, p.passes[name])
		}
	}
	return out
}

func (p *Plan) Resources() []Resource {
	return p.resources
}

// Sized lists the resources rebuilt on resize.
func (p *Plan) Sized() []Resource {
	var out []Resource
	for _, r := range p.resources {
		if r.Sized {
			out = append(out, r)
		}
	}
	return out
}

// Executor runs one pass.
type Executor func(ctx context.Context, pass *Pass) error

// Run executes every pass once, each on its own goroutine, starting a pass
// only after the tokens of all its dependencies have fired. The first
// failing pass cancels the rest.
func (p *Plan) Run(ctx context.Context, exec Executor) error {
	tokens := make(map[string]*Token, len(p.order))
	for _, name := range p.order {
		tokens[name] = NewToken()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range p.order {
		pass := p.passes[name]
		done := tokens[name]
		deps := p.deps[name]
		g.Go(func() error {
			for _, d := range deps {
				if err := tokens[d].Wait(ctx); err != nil {
					return err
				}
			}
			if err := exec(ctx, pass); err != nil {
				return fmt.Errorf("pass %s: %w", pass.Name, err)
			}
			done.Signal()
			return nil
		})
	}
	return g.Wait()
}
