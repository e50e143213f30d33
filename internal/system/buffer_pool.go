package system

import (
	"image"
	"image/color"
	"sync"
)

// CanvasPool reuses *image.RGBA frames of equal size
// to take pressure off the garbage collector while rendering previews.
type CanvasPool struct {
	pools map[image.Point]*sync.Pool
	mu    sync.RWMutex
}

var globalPool = &CanvasPool{
	pools: make(map[image.Point]*sync.Pool),
}

// GetCanvas returns a width x height canvas filled with bg.
func GetCanvas(width, height int, bg color.RGBA) *image.RGBA {
	return globalPool.Get(width, height, bg)
}

// PutCanvas hands a canvas back for reuse.
func PutCanvas(img *image.RGBA) {
	globalPool.Put(img)
}

func (p *CanvasPool) pool(size image.Point) *sync.Pool {
	p.mu.RLock()
	pool, exists := p.pools[size]
	p.mu.RUnlock()
	if exists {
		return pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Double check
	if pool, exists = p.pools[size]; !exists {
		pool = &sync.Pool{
			New: func() any {
				return image.NewRGBA(image.Rectangle{Max: size})
			},
		}
		p.pools[size] = pool
	}
	return pool
}

func (p *CanvasPool) Get(width, height int, bg color.RGBA) *image.RGBA {
	img := p.pool(image.Pt(width, height)).Get().(*image.RGBA)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = bg.R
		img.Pix[i+1] = bg.G
		img.Pix[i+2] = bg.B
		img.Pix[i+3] = bg.A
	}
	return img
}

func (p *CanvasPool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect.Max]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
