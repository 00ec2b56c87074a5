package sim

import "errors"

var ErrPaletteExhausted = errors.New("no free player colors")

// DefaultPalette is the fixed set of player colors.
var DefaultPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

// ColorPool hands out palette colors so that no two players in a room share
// one. Each room owns its own pool.
type ColorPool struct {
	palette  []string
	free     []string
	assigned map[string]bool
}

func NewColorPool(palette []string) *ColorPool {
	p := &ColorPool{
		palette:  append([]string(nil), palette...),
		free:     append([]string(nil), palette...),
		assigned: make(map[string]bool, len(palette)),
	}
	return p
}

// Acquire takes the first free color.
func (p *ColorPool) Acquire() (string, error) {
	if len(p.free) == 0 {
		return "", ErrPaletteExhausted
	}
	c := p.free[0]
	p.free = p.free[1:]
	p.assigned[c] = true
	return c, nil
}

// Release returns a color. Colors not currently assigned are ignored.
func (p *ColorPool) Release(color string) {
	if !p.assigned[color] {
		return
	}
	delete(p.assigned, color)
	// Keep palette order so the next Acquire is predictable.
	p.free = p.free[:0:0]
	for _, c := range p.palette {
		if !p.assigned[c] {
			p.free = append(p.free, c)
		}
	}
}

func (p *ColorPool) Free() []string {
	return append([]string(nil), p.free...)
}

func (p *ColorPool) Assigned() []string {
	var out []string
	for _, c := range p.palette {
		if p.assigned[c] {
			out = append(out, c)
		}
	}
	return out
}

func (p *ColorPool) Palette() []string {
	return append([]string(nil), p.palette...)
}
