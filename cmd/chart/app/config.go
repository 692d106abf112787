package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

const (
	defaultWidth  = 1200
	defaultHeight = 500

	minWidth  = 640
	minHeight = 320
)

// ImageFormat is the output encoding for the rendered chart.
type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

// Config holds the chart tool options.
type Config struct {
	DBPath     string
	RunID      string
	From       *time.Time
	To         *time.Time
	OutputFile string
	Format     ImageFormat
	Width      int
	Height     int
	Theme      Theme
	Location   *time.Location
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Width:    defaultWidth,
		Height:   defaultHeight,
		Theme:    ThemeDark,
		Location: time.Local,
	}
}

// NewConfigFromCLI builds the configuration from command line flags.
func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme, from, to string
	var utc bool
	pflag.StringVarP(&c.DBPath, "db", "d", "powermeter.db", "Path to the database file")
	pflag.StringVarP(&c.RunID, "run", "r", "", "Run ID to chart (default: the latest run)")
	pflag.StringVar(&from, "from", "", "Start of the time window, e.g. '2026-08-25 10:00:00'")
	pflag.StringVar(&to, "to", "", "End of the time window")
	pflag.StringVarP(&c.OutputFile, "out", "o", "", "Path to the output image")
	pflag.StringVarP(&imageFormat, "format", "f", string(ImagePNG), "Output image format. [png, jpeg]")
	pflag.IntVar(&c.Width, "width", defaultWidth, "Image width in pixels")
	pflag.IntVar(&c.Height, "height", defaultHeight, "Image height in pixels")
	pflag.StringVar(&theme, "theme", string(ThemeDark), "Chart theme. [dark, light]")
	pflag.BoolVar(&utc, "utc", false, "Display times in UTC instead of local time")
	pflag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	var err error
	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.Width < minWidth || c.Height < minHeight:
		err = fmt.Errorf("image must be at least %dx%d pixels", minWidth, minHeight)
	default:
		if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else if _, ok = validThemes[Theme(theme)]; !ok {
			err = fmt.Errorf("invalid theme: %s", theme)
		}
	}

	if err == nil && from != "" {
		var t time.Time
		if t, err = parseTime(from); err == nil {
			c.From = &t
		}
	}
	if err == nil && to != "" {
		var t time.Time
		if t, err = parseTime(to); err == nil {
			c.To = &t
		}
	}
	if err == nil && c.From != nil && c.To != nil && !c.To.After(*c.From) {
		err = errors.New("the time window end must be after its start")
	}

	if err != nil {
		pflag.Usage()
		return nil, err
	}

	if utc {
		c.Location = time.UTC
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = Theme(theme)
	c.OutputFile = ensureExtension(c.OutputFile, c.Format)
	return c, nil
}

// parseTime accepts a timestamp with or without a time component or zone.
// Zoneless values are read as local time.
func parseTime(s string) (time.Time, error) {
	layouts := []string{time.DateTime, time.RFC3339, time.DateOnly}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp: %q", s)
}

// ensureExtension appends the format's extension unless the path already
// carries it. A .jpg suffix counts for the jpeg format.
func ensureExtension(path string, format ImageFormat) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "."+string(format)) {
		return path
	}
	if format == ImageJPEG && strings.HasSuffix(lower, ".jpg") {
		return path
	}
	return fmt.Sprintf("%s.%s", path, format)
}
