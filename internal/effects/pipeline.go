// Package effects runs the per-element filter stack of video layers. Each
// element gets one lazily created shading context sized to its box.
package effects

import (
	"image"
	"sync"

	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/timeline"
)

type elementContext struct {
	ctx    Context
	size   image.Point
	failed bool
}

// Pipeline owns the shading contexts, keyed by element id.
type Pipeline struct {
	device Device

	mu       sync.Mutex
	contexts map[string]*elementContext
}

func NewPipeline(device Device) *Pipeline {
	return &Pipeline{
		device:   device,
		contexts: make(map[string]*elementContext),
	}
}

// Apply uploads frame and runs each filter in order. When no program
// compiles or the context cannot be created, frame is returned untouched.
// The result is owned by the pipeline until the next Apply for the element.
func (p *Pipeline) Apply(elementID string, frame image.Image, filters []timeline.FilterSpec, size image.Point) image.Image {
	if frame == nil || len(filters) == 0 {
		return frame
	}

	var programs []Fragment
	for _, f := range filters {
		frag, err := Compile(f.Name, ParseValue(f.Value))
		if err != nil {
			logging.Logger().Debug("filter skipped", "element", elementID, "err", err)
			continue
		}
		programs = append(programs, frag)
	}
	if len(programs) == 0 {
		return frame
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ec, err := p.contextFor(elementID, size)
	if err != nil {
		logging.Logger().Warn("filter fallback", "element", elementID, "err", err)
		return frame
	}

	var out image.Image = frame
	for _, frag := range programs {
		ec.ctx.Upload(out)
		res, err := ec.ctx.Run(frag)
		if err != nil {
			logging.Logger().Warn("filter fallback", "element", elementID, "err", err)
			return frame
		}
		out = res
	}
	return out
}

// contextFor returns the element context, recreating it when the box size
// changed. A failed creation is remembered until Reset.
func (p *Pipeline) contextFor(elementID string, size image.Point) (*elementContext, error) {
	ec, ok := p.contexts[elementID]
	if ok && ec.size == size {
		if ec.failed {
			return nil, ErrContext
		}
		return ec, nil
	}
	if ok && ec.ctx != nil {
		ec.ctx.Close()
	}

	ctx, err := p.device.NewContext(size.X, size.Y)
	if err != nil {
		p.contexts[elementID] = &elementContext{size: size, failed: true}
		return nil, err
	}
	ec = &elementContext{ctx: ctx, size: size}
	p.contexts[elementID] = ec
	return ec, nil
}

// Release drops the context of one element.
func (p *Pipeline) Release(elementID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ec, ok := p.contexts[elementID]; ok {
		if ec.ctx != nil {
			ec.ctx.Close()
		}
		delete(p.contexts, elementID)
	}
}

// Reset closes every context.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ec := range p.contexts {
		if ec.ctx != nil {
			ec.ctx.Close()
		}
		delete(p.contexts, id)
	}
}
