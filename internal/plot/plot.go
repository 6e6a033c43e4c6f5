// Package plot renders a profile-method section's sample stream as a
// PNG power-over-time chart, for a quick visual check of a region's
// energy profile without post-processing the JSON document.
//
// Adapted from cmd/memheat's tick/label layout (draw.go's HTicks,
// reworked from SVG path commands to a raster image.Draw canvas) and
// cmd/memanim/main.go's freetype text-rendering setup, both driven by
// the kept scale package's axis-scale types.
package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	"github.com/golang/freetype"

	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/output"
	"github.com/aclements/nrgprof/scale"
)

// DefaultFontPath is the TrueType font axis labels render with.
// There is no fontconfig equivalent in the standard library, so — as
// in cmd/memanim's loader — this is a fixed guess rather than a real
// lookup; a system without this font should set Options.FontPath.
const DefaultFontPath = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"

// Options controls chart dimensions and label rendering.
type Options struct {
	Width, Height int
	FontPath      string
}

// DefaultOptions is a reasonable chart size for a single section.
var DefaultOptions = Options{Width: 640, Height: 320, FontPath: DefaultFontPath}

const (
	marginLeft   = 56
	marginRight  = 12
	marginTop    = 16
	marginBottom = 36
)

// RenderPowerOverTime draws samples — one profile-method section's
// sample stream, in the column layout format names — as a PNG line
// chart and writes it to w. valueIndex selects which column of
// Sample.Values to plot (e.g. the "power" column of a ppc64
// ["sensor_time","power"] format).
func RenderPowerOverTime(samples []output.Sample, format []string, valueIndex int, opts Options, w io.Writer) error {
	if len(samples) == 0 {
		return errtag.New(errtag.Setup, "plot: no samples to render")
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts = DefaultOptions
	}
	if opts.FontPath == "" {
		opts.FontPath = DefaultFontPath
	}

	times := make([]float64, len(samples))
	values := make([]float64, len(samples))
	for i, s := range samples {
		times[i] = float64(s.TimeNS)
		if valueIndex < len(s.Values) {
			values[i] = s.Values[valueIndex]
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	xScale := scale.NewLinear(times)
	yScale := scale.NewLinear(values)
	xOut := scale.NewOutputScale(marginLeft, float64(opts.Width-marginRight))
	yOut := scale.NewOutputScale(float64(opts.Height-marginBottom), marginTop)
	xOut.Clamp()
	yOut.Clamp()

	fc, err := loadFace(img, opts.FontPath)
	if err != nil {
		return err
	}

	label := "value"
	if valueIndex < len(format) {
		label = format[valueIndex]
	}

	drawFrame(img)
	drawTicks(img, fc, xScale, xOut, yOut, true, "%.0fns")
	drawTicks(img, fc, yScale, yOut, xOut, false, "%.1f "+label)
	drawLine(img, times, values, xScale, yScale, xOut, yOut)

	return png.Encode(w, img)
}

func loadFace(dst draw.Image, fontPath string) (*freetype.Context, error) {
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, errtag.Wrap(errtag.Setup, "plot: loading font", err)
	}
	font, err := freetype.ParseFont(data)
	if err != nil {
		return nil, errtag.Wrap(errtag.Setup, "plot: parsing font", err)
	}
	fc := freetype.NewContext()
	fc.SetFont(font)
	fc.SetFontSize(10)
	fc.SetSrc(image.Black)
	fc.SetDst(dst)
	fc.SetClip(dst.Bounds())
	return fc, nil
}

func drawFrame(img draw.Image) {
	b := img.Bounds()
	hline(img, marginLeft, b.Dx()-marginRight, b.Dy()-marginBottom, color.Black)
	vline(img, marginLeft, marginTop, b.Dy()-marginBottom, color.Black)
}

// drawTicks draws up to five major ticks for sc along one axis,
// mapped through out into pixel coordinates, with a text label drawn
// via fc at each tick — the raster equivalent of draw.go's
// TicksFormat.HTicks, generalized to either axis since plot only ever
// needs one vertical and one horizontal pass.
func drawTicks(img draw.Image, fc *freetype.Context, sc scale.Linear, out, cross scale.OutputScale, horizontal bool, format string) {
	major, _ := sc.Ticks(5)
	crossPx, _ := cross.Of(0)
	for _, t := range major {
		px, ok := out.Of(sc.Of(t))
		if !ok {
			continue
		}
		label := fmt.Sprintf(format, t)
		if horizontal {
			vtick(img, int(px), int(crossPx))
			fc.DrawString(label, freetype.Pt(int(px)-len(label)*3, int(crossPx)+14))
		} else {
			htick(img, int(crossPx), int(px))
			fc.DrawString(label, freetype.Pt(4, int(px)+4))
		}
	}
}

func drawLine(img draw.Image, times, values []float64, xScale, yScale scale.Linear, xOut, yOut scale.OutputScale) {
	prevX, prevY, has := 0, 0, false
	for i := range times {
		px, okX := xOut.Of(xScale.Of(times[i]))
		py, okY := yOut.Of(yScale.Of(values[i]))
		if !okX || !okY {
			has = false
			continue
		}
		x, y := int(px), int(py)
		if has {
			segment(img, prevX, prevY, x, y, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff})
		}
		prevX, prevY, has = x, y, true
	}
}

func hline(img draw.Image, x0, x1, y int, c color.Color) {
	for x := x0; x <= x1; x++ {
		img.Set(x, y, c)
	}
}

func vline(img draw.Image, x, y0, y1 int, c color.Color) {
	for y := y0; y <= y1; y++ {
		img.Set(x, y, c)
	}
}

func vtick(img draw.Image, x, y int) {
	for d := 0; d < 4; d++ {
		img.Set(x, y+d, color.Black)
	}
}

func htick(img draw.Image, x, y int) {
	for d := 0; d < 4; d++ {
		img.Set(x-d, y, color.Black)
	}
}

// segment draws a naive single-pixel-wide line with Bresenham's
// algorithm; chart lines have no anti-aliasing requirement.
func segment(img draw.Image, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
