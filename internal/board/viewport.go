package board

// Zoom scale clamp range
const (
	MinScale = 0.2
	MaxScale = 5.0
)

// The pan/zoom mapping between screen and world coordinates. Pure
// client-side state: never shared, never persisted, rebuilt to defaults
// on reload.
type Viewport struct {
	OffsetX float64
	OffsetY float64
	Scale   float64
}

func DefaultViewport() Viewport {
	return Viewport{Scale: 1}
}

// ToWorld inverts the transform for hit-testing and shape creation.
func (v Viewport) ToWorld(sx, sy float64) (float64, float64) {
	return (sx - v.OffsetX) / v.Scale, (sy - v.OffsetY) / v.Scale
}

func (v Viewport) ToScreen(wx, wy float64) (float64, float64) {
	return wx*v.Scale + v.OffsetX, wy*v.Scale + v.OffsetY
}

// Panned accumulates a screen-space delta into the offset.
func (v Viewport) Panned(dx, dy float64) Viewport {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}

// ZoomedAt rescales anchored so the point under the cursor stays
// stationary on screen: newOffset = cursor - (cursor-offset)*(new/old).
func (v Viewport) ZoomedAt(cx, cy, newScale float64) Viewport {
	newScale = clampScale(newScale)
	ratio := newScale / v.Scale
	return Viewport{
		OffsetX: cx - (cx-v.OffsetX)*ratio,
		OffsetY: cy - (cy-v.OffsetY)*ratio,
		Scale:   newScale,
	}
}

func clampScale(s float64) float64 {
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}
