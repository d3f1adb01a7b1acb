package inference

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/zhouzirui/vqa-lens/backend/internal/service/prompt"
)

// StaticEngine answers without a model. It describes the image size and mean
// colour, which is enough to exercise the service end to end in development.
type StaticEngine struct{}

var _ Engine = StaticEngine{}

func (StaticEngine) Name() string { return "static" }

func (StaticEngine) EchoConvention() string { return prompt.EchoConvention }

func (StaticEngine) Healthy(context.Context) bool { return true }

// Generate implements Engine.
func (StaticEngine) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Image == nil {
		return "", fmt.Errorf("static engine: no image")
	}
	b := req.Image.Bounds()
	c := meanColor(req.Image)
	answer := fmt.Sprintf("a %dx%d image, mean colour #%02x%02x%02x", b.Dx(), b.Dy(), c.R, c.G, c.B)
	return prompt.Echo(req.Prompt, answer), nil
}

func meanColor(img image.Image) color.RGBA {
	b := img.Bounds()
	n := uint64(b.Dx() * b.Dy())
	if n == 0 {
		return color.RGBA{}
	}
	var r, g, bl uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += uint64(cr >> 8)
			g += uint64(cg >> 8)
			bl += uint64(cb >> 8)
		}
	}
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 0xff}
}
