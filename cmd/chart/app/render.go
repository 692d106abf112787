package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi                 = 120.0
	fontSize            = 12.0
	lineSpacing         = 1.4
	tickLength          = 5
	pixelsPerTimeLabel  = 150.0
	pixelsPerPowerLabel = 60.0

	// Default border sizes in pixels
	defaultTopBorder    = 36
	defaultLeftBorder   = 90
	defaultBottomBorder = 120
	defaultRightBorder  = 40

	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the space around the plot frame
type BorderConfig struct {
	Top    int // Headroom for the scale unit caption
	Left   int // Space for the power scale
	Bottom int // Space for the time scale and the info block
	Right  int // Right padding
}

// RenderConfig holds all configuration options for chart rendering
type RenderConfig struct {
	// Image dimensions in pixels
	Width  int
	Height int

	// Time display configuration
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	// Visual configuration
	FontSize float64 // Font size in points
	Theme    Theme   // Color theme

	// Border configuration
	Borders BorderConfig
}

// ChartRenderer draws a run's power trace onto an annotated frame.
type ChartRenderer struct {
	config  RenderConfig
	palette Palette
}

// NewChartRenderer creates a new chart renderer with the given configuration
func NewChartRenderer(config RenderConfig) (*ChartRenderer, error) {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
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
	if config.Borders.Top == 0 {
		config.Borders.Top = defaultTopBorder
	}
	if config.Borders.Left == 0 {
		config.Borders.Left = defaultLeftBorder
	}
	if config.Borders.Bottom == 0 {
		config.Borders.Bottom = defaultBottomBorder
	}
	if config.Borders.Right == 0 {
		config.Borders.Right = defaultRightBorder
	}

	return &ChartRenderer{config: config, palette: paletteFor(config.Theme)}, nil
}

// Render creates an image of the power trace with annotations
func (r *ChartRenderer) Render(series *Series) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.palette.Background), image.Point{}, draw.Src)

	plotArea := image.Rect(
		r.config.Borders.Left,
		r.config.Borders.Top,
		r.config.Width-r.config.Borders.Right,
		r.config.Height-r.config.Borders.Bottom,
	)

	minPower, maxPower := series.PowerBounds()

	ann, err := newAnnotator(annotatorConfig{
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        r.config.Borders,
	}, r.palette)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	// Scales and gridlines go down first; the trace overdraws them
	if err = ann.annotate(img, plotArea, series, minPower, maxPower); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderTrace(img, plotArea, series, minPower, maxPower)

	return img, nil
}

// renderTrace draws the corrected power polyline. Segments touching an
// overloaded reading switch to the overload color.
func (r *ChartRenderer) renderTrace(img *image.RGBA, area image.Rectangle, series *Series, minPower, maxPower float64) {
	span := series.End.Sub(series.Start)

	xFor := func(t time.Time) int {
		ratio := float64(t.Sub(series.Start)) / float64(span)
		return area.Min.X + int(ratio*float64(area.Dx()-1))
	}
	yFor := func(dBm float64) int {
		ratio := (dBm - minPower) / (maxPower - minPower)
		return area.Max.Y - 1 - int(ratio*float64(area.Dy()-1))
	}

	prev := series.Readings[0]
	px, py := xFor(prev.Time), yFor(prev.CorrectedDBm)
	if len(series.Readings) == 1 {
		drawMarker(img, area, px, py, r.palette.Trace)
		return
	}

	for _, cur := range series.Readings[1:] {
		cx, cy := xFor(cur.Time), yFor(cur.CorrectedDBm)

		c := r.palette.Trace
		if prev.Overload || cur.Overload {
			c = r.palette.Overload
		}
		drawLine(img, area, px, py, cx, cy, c)

		prev, px, py = cur, cx, cy
	}
}

// Internal annotator implementation
type annotatorConfig struct {
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	palette  Palette
	fontFace font.Face
}

func newAnnotator(config annotatorConfig, palette Palette) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.NewUniform(palette.Text))

	return &annotator{
		context: ctx,
		config:  config,
		palette: palette,
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

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, series *Series, minPower, maxPower float64) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawPowerScale(img, area, minPower, maxPower); err != nil {
		return fmt.Errorf("drawing power scale: %w", err)
	}
	if err := a.drawTimeScale(img, area, series); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	a.drawFrame(img, area)
	if err := a.drawInfoBlock(img, series); err != nil {
		return fmt.Errorf("drawing info block: %w", err)
	}

	return nil
}

func (a *annotator) drawPowerScale(img *image.RGBA, area image.Rectangle, minPower, maxPower float64) error {
	step := niceDBmStep(maxPower-minPower, area.Dy())
	start := math.Ceil(minPower/step) * step

	// Get font metrics once
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for p := start; p <= maxPower; p += step {
		ratio := (p - minPower) / (maxPower - minPower)
		y := area.Max.Y - 1 - int(ratio*float64(area.Dy()-1))

		// Gridline across the plot
		for x := area.Min.X + 1; x < area.Max.X-1; x++ {
			img.Set(x, y, a.palette.Grid)
		}

		// Tick mark
		for x := area.Min.X - tickLength; x < area.Min.X; x++ {
			img.Set(x, y, a.palette.Axis)
		}

		// Right-align the label against the tick, centered vertically
		label := fmt.Sprintf("%.0f", p)
		width := font.MeasureString(a.fontFace, label)
		textY := y + fontHeight/2 - metrics.Descent.Round()
		pt := freetype.Pt(area.Min.X-tickLength-6-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing power label: %w", err)
		}
	}

	// Unit caption above the scale
	caption := "dBm"
	width := font.MeasureString(a.fontFace, caption)
	pt := freetype.Pt(area.Min.X-tickLength-6-width.Round(), a.config.Borders.Top-fontHeight/2)
	if _, err := a.context.DrawString(caption, pt); err != nil {
		return fmt.Errorf("drawing power scale caption: %w", err)
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, series *Series) error {
	duration := series.End.Sub(series.Start)
	step := niceTimeStep(duration, area.Dx())
	format := timeLabelFormat(step)

	// Get font metrics once
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := area.Max.Y + tickLength + fontHeight - metrics.Descent.Round() + 2

	// Truncate aligns the ticks on wall-clock boundaries
	first := series.Start.Truncate(step)
	if first.Before(series.Start) {
		first = first.Add(step)
	}

	for t := first; !t.After(series.End); t = t.Add(step) {
		ratio := float64(t.Sub(series.Start)) / float64(duration)
		x := area.Min.X + int(ratio*float64(area.Dx()-1))

		// Gridline down the plot
		for y := area.Min.Y + 1; y < area.Max.Y-1; y++ {
			img.Set(x, y, a.palette.Grid)
		}

		// Tick mark
		for y := area.Max.Y; y < area.Max.Y+tickLength; y++ {
			img.Set(x, y, a.palette.Axis)
		}

		// Format and draw the centered time label
		label := t.In(a.config.Location).Format(format)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

// drawFrame outlines the plot area
func (a *annotator) drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, area.Min.Y, a.palette.Axis)
		img.Set(x, area.Max.Y-1, a.palette.Axis)
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(area.Min.X, y, a.palette.Axis)
		img.Set(area.Max.X-1, y, a.palette.Axis)
	}
}

func (a *annotator) drawInfoBlock(img *image.RGBA, series *Series) error {
	duration := series.End.Sub(series.Start)
	value, prefix := humanize.ComputeSI(dbmToWatts(series.MaxDBm))

	lines := []string{
		fmt.Sprintf("Run: %s; Freq: %s; Averaging: %d ms",
			series.Run.ID, formatFrequencyMHz(series.Run.FrequencyMHz), series.Run.AveragingMs),
		fmt.Sprintf("Time: %s - %s (%s)",
			series.Start.In(a.config.Location).Format(a.config.DatetimeFormat),
			series.End.In(a.config.Location).Format(a.config.DatetimeFormat),
			duration.Round(time.Second)),
		fmt.Sprintf("Min: %.1f dBm; Avg: %.1f dBm; Max: %.1f dBm (%0.2f %sW); Readings: %d; Overloads: %d",
			series.MinDBm, series.MeanDBm, series.MaxDBm, value, prefix,
			len(series.Readings), series.Overloads),
	}

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// First baseline sits below the time scale labels
	pt := freetype.Pt(a.config.Borders.Left,
		img.Bounds().Max.Y-a.config.Borders.Bottom+tickLength+2*fontHeight+4)

	for _, line := range lines {
		if _, err := a.context.DrawString(line, pt); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		pt.Y += a.context.PointToFixed(a.config.FontSize * lineSpacing)
	}
	return nil
}

// Drawing primitives

// drawLine walks the segment with the integer Bresenham algorithm, clipped
// to the given area.
func drawLine(img *image.RGBA, area image.Rectangle, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if image.Pt(x0, y0).In(area) {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			if x0 == x1 {
				return
			}
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			if y0 == y1 {
				return
			}
			err += dx
			y0 += sy
		}
	}
}

// drawMarker paints a 3x3 block so a single reading is still visible
func drawMarker(img *image.RGBA, area image.Rectangle, x, y int, c color.Color) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if image.Pt(x+dx, y+dy).In(area) {
				img.Set(x+dx, y+dy, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Helper functions

// niceDBmStep picks a readable gridline interval for the plot height.
func niceDBmStep(rangeDB float64, height int) float64 {
	// Standard step sizes in dB
	steps := []float64{1, 2, 5, 10, 20, 30, 50}

	desiredSteps := float64(height) / pixelsPerPowerLabel
	targetStep := rangeDB / desiredSteps

	// Find the closest standard step size
	for _, step := range steps {
		if step >= targetStep {
			// If this step would give us at least 2 gridlines
			if rangeDB/step >= 2 {
				return step
			}
			break
		}
	}

	// If we can't find a suitable step or would get too few gridlines,
	// return half the range to show at least the midline
	return rangeDB / 2
}

// niceTimeStep picks a gridline interval that keeps the time labels
// readable at the given plot width.
func niceTimeStep(duration time.Duration, width int) time.Duration {
	niceIntervals := []time.Duration{
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		30 * time.Second,
		time.Minute,
		2 * time.Minute,
		5 * time.Minute,
		10 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
		2 * time.Hour,
		4 * time.Hour,
	}

	desiredSteps := float64(width) / pixelsPerTimeLabel
	roughStep := time.Duration(float64(duration) / desiredSteps)

	// Find the first interval larger than our rough step
	for _, interval := range niceIntervals {
		if interval >= roughStep {
			return interval
		}
	}

	return time.Hour * 6 // Default for very long runs
}

func timeLabelFormat(step time.Duration) string {
	if step < time.Minute {
		return "15:04:05"
	}
	return "15:04"
}

func formatFrequencyMHz(mhz float64) string {
	if mhz >= 1000 {
		return fmt.Sprintf("%.3f GHz", mhz/1000)
	}
	return fmt.Sprintf("%.1f MHz", mhz)
}

// dbmToWatts converts an absolute dBm level to watts.
func dbmToWatts(dBm float64) float64 {
	return math.Pow(10, dBm/10) / 1000
}
