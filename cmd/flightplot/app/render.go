package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/raster"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/roman-kulish/althold/internal/vehicle"
)

const (
	dpi            = 120.0
	fontSize       = 9.0
	tickMarkLength = 5
	pixelsPerLabel = 80.0
	traceWidth     = 2.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 70
	defaultRightBorder  = 80

	defaultDatetimeFormat = time.DateTime
)

var (
	gridColor     = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	bandColor     = color.RGBA{R: 0xe3, G: 0xf4, B: 0xe3, A: 0xff}
	altitudeColor = colorful.Hsv(215, 0.85, 0.80)
	throttleColor = colorful.Hsv(25, 0.90, 0.95)
	limitColor    = colorful.Hsv(0, 0.85, 0.85)
	phaseColor    = colorful.Hsv(0, 0, 0.55)
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the altitude scale
	Bottom int // Space for the time scale and information bar
	Right  int // Space for the throttle scale
}

// RenderConfig holds all configuration options for flight visualization
type RenderConfig struct {
	Width          int            // Plot area width in pixels
	Height         int            // Plot area height in pixels
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display
	FontSize       float64        // Font size in points

	Title          string
	TargetAltitude float64 // meters, zero hides the target and hover band
	HoverBand      float64 // meters either side of the target
	OverAltitude   float64 // failsafe altitude limit as a multiple of the target

	BorderConfig BorderConfig
}

// FlightRenderer draws altitude and throttle traces of a mission
type FlightRenderer struct {
	config RenderConfig
}

// NewFlightRenderer creates a new flight renderer with the given configuration
func NewFlightRenderer(config RenderConfig) (*FlightRenderer, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid plot size %dx%d", config.Width, config.Height)
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &FlightRenderer{config: config}, nil
}

// plot maps flight values to pixel coordinates inside the plot area
type plot struct {
	area     image.Rectangle
	duration time.Duration
	altMax   float64
}

func (p plot) x(offset time.Duration) float64 {
	if p.duration <= 0 {
		return float64(p.area.Min.X)
	}
	return float64(p.area.Min.X) + float64(offset)/float64(p.duration)*float64(p.area.Dx())
}

func (p plot) yAltitude(m float64) float64 {
	m = math.Max(0, math.Min(m, p.altMax))
	return float64(p.area.Max.Y) - m/p.altMax*float64(p.area.Dy())
}

func (p plot) yThrottle(pwm int) float64 {
	pwm = vehicle.ClampThrottle(pwm)
	span := float64(vehicle.MaxThrottle - vehicle.MinThrottle)
	return float64(p.area.Max.Y) - float64(pwm-vehicle.MinThrottle)/span*float64(p.area.Dy())
}

// Render creates an image of the flight with annotations
func (r *FlightRenderer) Render(flight *FlightData) (*image.RGBA, error) {
	if flight.Empty() {
		return nil, fmt.Errorf("no iterations to render")
	}

	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	altTop := math.Max(flight.AltitudeMax, r.config.TargetAltitude*math.Max(r.config.OverAltitude, 1))
	altStep := niceStep(altTop, r.config.Height/int(pixelsPerLabel))

	p := plot{
		area:     image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height),
		duration: flight.Duration(),
		altMax:   math.Max(altStep, math.Ceil(altTop/altStep)*altStep),
	}

	r.drawGuides(img, p, flight)
	r.drawTraces(img, p, flight)

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, p, flight, altStep); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

func (r *FlightRenderer) drawGuides(img *image.RGBA, p plot, flight *FlightData) {
	if t := r.config.TargetAltitude; t > 0 && r.config.HoverBand > 0 {
		top := int(p.yAltitude(t + r.config.HoverBand))
		bottom := int(p.yAltitude(t - r.config.HoverBand))
		draw.Draw(img, image.Rect(p.area.Min.X, top, p.area.Max.X, bottom), image.NewUniform(bandColor), image.Point{}, draw.Src)
	}

	box := []fixed.Point26_6{
		pt(float64(p.area.Min.X), float64(p.area.Min.Y)),
		pt(float64(p.area.Max.X), float64(p.area.Min.Y)),
		pt(float64(p.area.Max.X), float64(p.area.Max.Y)),
		pt(float64(p.area.Min.X), float64(p.area.Max.Y)),
		pt(float64(p.area.Min.X), float64(p.area.Min.Y)),
	}
	stroke(img, [][]fixed.Point26_6{box}, 1, color.Black)

	if t := r.config.TargetAltitude; t > 0 {
		stroke(img, [][]fixed.Point26_6{hline(p, p.yAltitude(t))}, 1, altitudeColor)
		if r.config.OverAltitude > 0 {
			stroke(img, [][]fixed.Point26_6{hline(p, p.yAltitude(t*r.config.OverAltitude))}, 1, limitColor)
		}
	}

	var phases [][]fixed.Point26_6
	for i := 1; i < len(flight.Points); i++ {
		if flight.Points[i].Phase != flight.Points[i-1].Phase {
			phases = append(phases, vline(p, p.x(flight.Points[i].Offset)))
		}
	}
	stroke(img, phases, 1, phaseColor)

	var aborts [][]fixed.Point26_6
	for _, a := range flight.Aborts {
		aborts = append(aborts, vline(p, p.x(a.Offset)))
	}
	stroke(img, aborts, traceWidth, limitColor)
}

func (r *FlightRenderer) drawTraces(img *image.RGBA, p plot, flight *FlightData) {
	stroke(img, altitudeSegments(p, flight.Points), traceWidth, altitudeColor)

	throttle := make([]fixed.Point26_6, 0, len(flight.Points))
	for _, point := range flight.Points {
		throttle = append(throttle, pt(p.x(point.Offset), p.yThrottle(point.Throttle)))
	}
	stroke(img, [][]fixed.Point26_6{throttle}, traceWidth, throttleColor)
}

// altitudeSegments splits the altitude trace where readings were invalid
func altitudeSegments(p plot, points []TracePoint) [][]fixed.Point26_6 {
	var (
		segments [][]fixed.Point26_6
		current  []fixed.Point26_6
	)
	for _, point := range points {
		if point.Altitude == nil {
			if len(current) > 0 {
				segments = append(segments, current)
				current = nil
			}
			continue
		}
		current = append(current, pt(p.x(point.Offset), p.yAltitude(*point.Altitude)))
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}

	return segments
}

func pt(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)}
}

func hline(p plot, y float64) []fixed.Point26_6 {
	return []fixed.Point26_6{pt(float64(p.area.Min.X), y), pt(float64(p.area.Max.X), y)}
}

func vline(p plot, x float64) []fixed.Point26_6 {
	return []fixed.Point26_6{pt(x, float64(p.area.Min.Y)), pt(x, float64(p.area.Max.Y))}
}

// stroke draws polylines of the given width. Single point lines are drawn as dots.
func stroke(img *image.RGBA, lines [][]fixed.Point26_6, width float64, c color.Color) {
	if len(lines) == 0 {
		return
	}

	size := img.Bounds().Size()
	rasterizer := raster.NewRasterizer(size.X, size.Y)
	rasterizer.UseNonZeroWinding = true

	for _, line := range lines {
		// zero length segments have no direction to stroke along
		line = slices.Compact(slices.Clone(line))
		if len(line) == 0 {
			continue
		}

		var path raster.Path
		path.Start(line[0])
		if len(line) == 1 {
			path.Add1(line[0].Add(fixed.Point26_6{X: 1}))
		}
		for _, point := range line[1:] {
			path.Add1(point)
		}
		raster.Stroke(rasterizer, path, fixed.Int26_6(width*64), nil, nil)
	}

	painter := raster.NewRGBAPainter(img)
	painter.SetColor(c)
	rasterizer.Rasterize(painter)
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, p plot, flight *FlightData, altStep float64) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawAltitudeScale(img, p, altStep); err != nil {
		return fmt.Errorf("drawing altitude scale: %w", err)
	}
	if err := a.drawThrottleScale(img, p); err != nil {
		return fmt.Errorf("drawing throttle scale: %w", err)
	}
	if err := a.drawTimeScale(img, p); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawTitle(p); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}
	if err := a.drawInfoBar(img, flight); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawAltitudeScale(img *image.RGBA, p plot, step float64) error {
	a.context.SetSrc(image.NewUniform(altitudeColor))
	defer a.context.SetSrc(image.Black)

	half := a.fontHeight() / 2
	for m := 0.0; m <= p.altMax+step/1000; m += step {
		y := int(p.yAltitude(m))

		if m > 0 && m < p.altMax {
			for x := p.area.Min.X + 1; x < p.area.Max.X; x++ {
				if img.RGBAAt(x, y) == (color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
					img.Set(x, y, gridColor)
				}
			}
		}
		for x := p.area.Min.X - tickMarkLength; x < p.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatAltitude(m)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(p.area.Min.X-tickMarkLength-3-width, y+half)); err != nil {
			return fmt.Errorf("drawing altitude label: %w", err)
		}
	}

	return nil
}

func (a *annotator) drawThrottleScale(img *image.RGBA, p plot) error {
	a.context.SetSrc(image.NewUniform(throttleColor))
	defer a.context.SetSrc(image.Black)

	half := a.fontHeight() / 2
	step := int(niceStep(float64(vehicle.MaxThrottle-vehicle.MinThrottle), p.area.Dy()/int(pixelsPerLabel)))
	for pwm := vehicle.MinThrottle; pwm <= vehicle.MaxThrottle; pwm += step {
		y := int(p.yThrottle(pwm))

		for x := p.area.Max.X; x < p.area.Max.X+tickMarkLength; x++ {
			img.Set(x, y, color.Black)
		}

		at := freetype.Pt(p.area.Max.X+tickMarkLength+3, y+half)
		if _, err := a.context.DrawString(fmt.Sprintf("%d µs", pwm), at); err != nil {
			return fmt.Errorf("drawing throttle label: %w", err)
		}
	}

	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, p plot) error {
	step := calculateNiceTimeStep(p.duration, p.area.Dx())
	textY := p.area.Max.Y + tickMarkLength + 3 + a.fontHeight()

	for offset := time.Duration(0); offset <= p.duration; offset += step {
		x := int(p.x(offset))

		for y := p.area.Max.Y; y < p.area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatOffset(offset)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}

	return nil
}

func (a *annotator) drawTitle(p plot) error {
	title := a.config.Title
	if title == "" {
		return nil
	}

	width := font.MeasureString(a.fontFace, title).Round()
	textY := (p.area.Min.Y + a.fontHeight()) / 2
	_, err := a.context.DrawString(title, freetype.Pt(p.area.Min.X+(p.area.Dx()-width)/2, textY))
	return err
}

func (a *annotator) drawInfoBar(img *image.RGBA, flight *FlightData) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		flight.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		flight.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%s iterations, %s invalid",
		humanize.Comma(int64(len(flight.Points))), humanize.Comma(int64(flight.Invalid))))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Max altitude: %s", formatAltitude(flight.AltitudeMax)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Throttle: %d - %d µs", flight.ThrottleMin, flight.ThrottleMax))
	for _, abort := range flight.Aborts {
		sb.WriteString(fmt.Sprintf("; Abort: %s at %s", abort.Verdict, formatOffset(abort.Offset)))
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 6

	_, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.BorderConfig.Left, textY))
	if err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// Helper functions

// niceStep returns a 1, 2 or 5 times power of ten step splitting span into at
// most maxTicks intervals
func niceStep(span float64, maxTicks int) float64 {
	if span <= 0 {
		return 1
	}
	maxTicks = max(maxTicks, 1)

	rough := span / float64(maxTicks)
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}

	return 10 * magnitude
}

func calculateNiceTimeStep(duration time.Duration, width int) time.Duration {
	desired := max(width/int(pixelsPerLabel*1.5), 1)
	roughStep := duration / time.Duration(desired)

	niceIntervals := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		time.Minute,
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return interval
		}
	}

	return 5 * time.Minute
}

func formatAltitude(m float64) string {
	if m < 1 && m > 0 {
		return fmt.Sprintf("%.0f cm", m*100)
	}
	return fmt.Sprintf("%s m", humanize.FtoaWithDigits(m, 2))
}

func formatOffset(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1f s", d.Seconds())
}
