//go:build !nogpu

package gpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// atlasTexture is the sampled RGBA8 atlas of the renderer.
type atlasTexture struct {
	size    uint32
	tex     hal.Texture
	view    hal.TextureView
	sampler hal.Sampler
}

// whiteAtlas is the 1x1 atlas used until one is uploaded, so untextured
// geometry draws in its vertex color.
func whiteAtlas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(img.Pix, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	return img
}

// newAtlasTexture uploads a square image. The caller validates the shape.
func newAtlasTexture(c *Context, img *image.RGBA) (*atlasTexture, error) {
	size := uint32(img.Rect.Dx()) //nolint:gosec // image bounds are non-negative
	a := &atlasTexture{size: size}
	device := c.device

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "logisim_atlas",
		Size:          hal.Extent3D{Width: size, Height: size, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create atlas texture: %w", err)
	}
	a.tex = tex

	if err := c.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, Aspect: gputypes.TextureAspectAll},
		tightPixels(img),
		&hal.ImageDataLayout{BytesPerRow: size * 4, RowsPerImage: size},
		&hal.Extent3D{Width: size, Height: size, DepthOrArrayLayers: 1},
	); err != nil {
		a.destroy(device)
		return nil, fmt.Errorf("upload atlas: %w", err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "logisim_atlas_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		a.destroy(device)
		return nil, fmt.Errorf("create atlas view: %w", err)
	}
	a.view = view

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "logisim_atlas_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		a.destroy(device)
		return nil, fmt.Errorf("create atlas sampler: %w", err)
	}
	a.sampler = sampler
	slogger().Debug("gpu: atlas uploaded", "size", size)
	return a, nil
}

func (a *atlasTexture) destroy(device hal.Device) {
	if a.sampler != nil {
		device.DestroySampler(a.sampler)
		a.sampler = nil
	}
	if a.view != nil {
		device.DestroyTextureView(a.view)
		a.view = nil
	}
	if a.tex != nil {
		device.DestroyTexture(a.tex)
		a.tex = nil
	}
}

// tightPixels returns the image rows without stride padding.
func tightPixels(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	row := w * 4
	if img.Stride == row && img.Rect.Min == (image.Point{}) {
		return img.Pix[:row*h]
	}
	out := make([]byte, row*h)
	for y := range h {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(out[y*row:(y+1)*row], img.Pix[off:off+row])
	}
	return out
}
