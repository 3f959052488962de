package ui

import "github.com/charmbracelet/harmonica"

const tickFPS = 5 // matches the 200ms UI tick

// progressSpring animates the progress bar toward the real playback
// position instead of jumping on every tick.
type progressSpring struct {
	spring   harmonica.Spring
	pos      float64
	velocity float64
}

func newProgressSpring() progressSpring {
	return progressSpring{
		spring: harmonica.NewSpring(harmonica.FPS(tickFPS), 6.0, 0.9),
	}
}

// update advances the animation toward target and returns the smoothed
// ratio. Backward jumps (seek, track change) snap immediately.
func (p *progressSpring) update(target float64) float64 {
	if target < p.pos {
		p.pos = target
		p.velocity = 0
		return p.pos
	}
	p.pos, p.velocity = p.spring.Update(p.pos, p.velocity, target)
	if p.pos < 0 {
		p.pos = 0
	}
	if p.pos > 1 {
		p.pos = 1
	}
	return p.pos
}
