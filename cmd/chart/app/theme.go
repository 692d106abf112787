package app

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Theme selects the chart palette.
type Theme string

var validThemes = map[Theme]struct{}{
	ThemeDark:  {},
	ThemeLight: {},
}

// Palette holds the colors the renderer draws with.
type Palette struct {
	Background color.Color
	Grid       color.Color
	Axis       color.Color
	Text       color.Color
	Trace      color.Color
	Overload   color.Color
}

// paletteFor returns the palette for a theme. Unknown themes render dark;
// config validation has already rejected them.
func paletteFor(theme Theme) Palette {
	if theme == ThemeLight {
		return Palette{
			Background: color.White,
			Grid:       color.RGBA{R: 0xd9, G: 0xd9, B: 0xd9, A: 0xff},
			Axis:       color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff},
			Text:       color.Black,
			Trace:      colorful.Hsv(211, 0.85, 0.70),
			Overload:   colorful.Hsv(10, 0.95, 0.85),
		}
	}

	return Palette{
		Background: color.RGBA{R: 0x12, G: 0x14, B: 0x17, A: 0xff},
		Grid:       color.RGBA{R: 0x2a, G: 0x2e, B: 0x34, A: 0xff},
		Axis:       color.RGBA{R: 0x8a, G: 0x91, B: 0x99, A: 0xff},
		Text:       color.RGBA{R: 0xd5, G: 0xd9, B: 0xdd, A: 0xff},
		Trace:      colorful.Hsv(140, 0.75, 0.90),
		Overload:   colorful.Hsv(10, 0.95, 1.0),
	}
}
