package app

import (
	"testing"
	"time"

	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/storage"
)

func TestNiceDBmStep(t *testing.T) {
	testCases := []struct {
		name    string
		rangeDB float64
		height  int
		want    float64
	}{
		{"narrow range on a tall plot", 3, 600, 1},
		{"padded default span", 11, 344, 2},
		{"sixty dB swing", 60, 344, 20},
		{"too short for standard steps", 8, 60, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := niceDBmStep(tc.rangeDB, tc.height); got != tc.want {
				t.Errorf("Expected step %f, got %f", tc.want, got)
			}
		})
	}
}

func TestNiceTimeStep(t *testing.T) {
	testCases := []struct {
		name     string
		duration time.Duration
		width    int
		want     time.Duration
	}{
		{"half a minute", 30 * time.Second, 1120, 5 * time.Second},
		{"five minutes", 5 * time.Minute, 1200, time.Minute},
		{"a day", 24 * time.Hour, 1200, 4 * time.Hour},
		{"longer than any interval", 100 * time.Hour, 1200, 6 * time.Hour},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := niceTimeStep(tc.duration, tc.width); got != tc.want {
				t.Errorf("Expected step %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTimeLabelFormat(t *testing.T) {
	if got := timeLabelFormat(10 * time.Second); got != "15:04:05" {
		t.Errorf("Expected seconds in sub-minute labels, got %q", got)
	}
	if got := timeLabelFormat(5 * time.Minute); got != "15:04" {
		t.Errorf("Expected minute labels, got %q", got)
	}
}

func TestChartRenderer_Render(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	run := storage.Run{ID: "run-0001", FrequencyMHz: 1000, AveragingMs: 25}

	readings := make([]meter.Reading, 0, 50)
	for i := 0; i < 50; i++ {
		readings = append(readings, meter.Reading{
			Time:         base.Add(time.Duration(i) * time.Second),
			RunID:        run.ID,
			CorrectedDBm: -40 + float64(i%7),
			Overload:     i == 25,
		})
	}

	renderer, err := NewChartRenderer(RenderConfig{Width: 640, Height: 320, Location: time.UTC})
	if err != nil {
		t.Fatalf("Failed to create renderer: %s", err)
	}

	img, err := renderer.Render(NewSeries(run, readings))
	if err != nil {
		t.Fatalf("Failed to render chart: %s", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 640 || bounds.Dy() != 320 {
		t.Errorf("Expected a 640x320 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	// The trace and annotations must paint over the background fill.
	background := img.RGBAAt(0, 0)
	var painted int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.RGBAAt(x, y) != background {
				painted++
			}
		}
	}
	if painted == 0 {
		t.Error("Expected a drawn chart, got a blank image")
	}
}

func TestChartRenderer_RenderSingleReading(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	series := NewSeries(storage.Run{ID: "run-0001"}, []meter.Reading{
		{Time: base, CorrectedDBm: -30},
	})

	renderer, err := NewChartRenderer(RenderConfig{Width: 640, Height: 320, Location: time.UTC})
	if err != nil {
		t.Fatalf("Failed to create renderer: %s", err)
	}

	if _, err = renderer.Render(series); err != nil {
		t.Fatalf("Failed to render a single-reading chart: %s", err)
	}
}
