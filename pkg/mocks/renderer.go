package mocks

import (
	"image"
	"image/color"
	"sync"

	"github.com/user/vidshrink/pkg/ports"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	CreateCanvasFunc func(width, height int, bg color.Color) ports.Canvas
	DecodeImageFunc  func(data []byte, format ports.ImageFormat) (image.Image, error)
	EncodeImageFunc  func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc  func(img image.Image, width, height int) image.Image

	mu       sync.Mutex
	Canvases []*Canvas
	Encoded  []ports.ImageFormat
}

func (m *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	if m.CreateCanvasFunc != nil {
		return m.CreateCanvasFunc(width, height, bg)
	}
	c := &Canvas{width: width, height: height}
	m.mu.Lock()
	m.Canvases = append(m.Canvases, c)
	m.mu.Unlock()
	return c
}

func (m *Renderer) DecodeImage(data []byte, format ports.ImageFormat) (image.Image, error) {
	if m.DecodeImageFunc != nil {
		return m.DecodeImageFunc(data, format)
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	m.mu.Lock()
	m.Encoded = append(m.Encoded, format)
	m.mu.Unlock()
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// CanvasCount returns the number of canvases created so far.
func (m *Renderer) CanvasCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Canvases)
}

var _ ports.Renderer = (*Renderer)(nil)

// Canvas is a mock implementation of ports.Canvas. It does not rasterize;
// ToImage returns one small shared image so long render loops stay cheap.
type Canvas struct {
	width  int
	height int

	mu    sync.Mutex
	Draws int
	snap  image.Image
}

func (m *Canvas) Width() int  { return m.width }
func (m *Canvas) Height() int { return m.height }

func (m *Canvas) Clear(c color.Color) {}

func (m *Canvas) DrawImage(img image.Image, x, y int) {
	m.mu.Lock()
	m.Draws++
	m.mu.Unlock()
}

func (m *Canvas) DrawImageScaled(img image.Image, x, y, width, height int) {
	m.mu.Lock()
	m.Draws++
	m.mu.Unlock()
}

func (m *Canvas) ToImage() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		m.snap = image.NewRGBA(image.Rect(0, 0, 2, 2))
	}
	return m.snap
}

var _ ports.Canvas = (*Canvas)(nil)
