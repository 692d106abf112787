// Package touchstone reads two-port Touchstone (.s2p) network files in the
// V1 format that NanoVNA-style analysers export attenuator and coupler
// sweeps in.
//
// This is a deliberate subset of the Touchstone V1 format: only S-parameter
// data in MA, DB or RI format is accepted, and the noise parameter section,
// when present, is detected and dropped. Frequencies are normalised to Hz
// using the option line unit.
package touchstone

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoData reports a file with a valid header but no network data.
var ErrNoData = errors.New("touchstone: no s-parameter data")

// Format is the s-parameter encoding declared on the option line.
type Format string

const (
	FormatMA Format = "ma" // linear magnitude, angle in degrees
	FormatDB Format = "db" // magnitude in dB, angle in degrees
	FormatRI Format = "ri" // real and imaginary parts
)

var frequencyMult = map[string]float64{
	"hz":  1,
	"khz": 1e3,
	"mhz": 1e6,
	"ghz": 1e9,
}

// Record is one frequency point. Values holds the four s-parameter pairs
// unconverted, in V1 two-port file order: S11, S21, S12, S22.
type Record struct {
	FrequencyHz float64
	Values      [8]float64
}

// Network is a parsed two-port file.
type Network struct {
	Version       string // "1.0" unless the file carries a [Version] keyword
	Comments      string // header comments preceding the option line
	FrequencyUnit string // hz, khz, mhz or ghz
	Format        Format
	ResistanceOhm float64
	Records       []Record
}

// Point is the forward transmission figure at one frequency. DB is the raw
// S21 magnitude in dB, negative for attenuators and couplers.
type Point struct {
	FrequencyHz float64
	DB          float64
}

// S21DB converts every record's forward transmission coefficient to a dB
// magnitude.
func (n *Network) S21DB() []Point {
	points := make([]Point, len(n.Records))
	for i, rec := range n.Records {
		m, a := rec.Values[2], rec.Values[3]

		var db float64
		switch n.Format {
		case FormatDB:
			db = m
		case FormatRI:
			db = 20 * math.Log10(math.Hypot(m, a))
		default:
			db = 20 * math.Log10(m)
		}
		points[i] = Point{FrequencyHz: rec.FrequencyHz, DB: db}
	}
	return points
}

// ReadFile parses the .s2p file at path. The extension is checked up front
// so that one-port or .ts files fail with a clear message instead of a
// data error.
func ReadFile(path string) (*Network, error) {
	if !strings.EqualFold(filepath.Ext(path), ".s2p") {
		return nil, fmt.Errorf("touchstone: %s is not a two-port network file (.s2p)", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("touchstone: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a two-port network from r. Touchstone files are
// case-insensitive throughout.
func Parse(r io.Reader) (*Network, error) {
	n := &Network{Version: "1.0"}

	var (
		comments      []string
		values        []float64
		haveOption    bool
		wantReference bool
	)

	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		text, comment, hasComment := strings.Cut(sc.Text(), "!")
		if hasComment && !haveOption {
			comments = append(comments, strings.TrimSpace(comment))
		}

		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			continue
		}

		// A bare [Reference] keyword puts its impedances on the next line.
		if wantReference {
			wantReference = false
			continue
		}

		switch {
		case strings.HasPrefix(text, "[version]"):
			if fields := strings.Fields(text); len(fields) > 1 {
				n.Version = fields[1]
			}
		case strings.HasPrefix(text, "[reference]"):
			wantReference = len(strings.Fields(text)) == 1
		case strings.HasPrefix(text, "[number of ports]"):
			fields := strings.Fields(text)
			if ports, err := strconv.Atoi(fields[len(fields)-1]); err != nil || ports != 2 {
				return nil, fmt.Errorf("touchstone: line %d: only two-port networks are supported", lineNo)
			}
		case strings.HasPrefix(text, "["):
			// [Number of Frequencies], [Network Data], [End] and the rest
			// of the V2 keywords carry nothing this subset needs.
		case strings.HasPrefix(text, "#"):
			if err := n.parseOptionLine(text); err != nil {
				return nil, fmt.Errorf("touchstone: line %d: %w", lineNo, err)
			}
			haveOption = true
		default:
			if !haveOption {
				return nil, fmt.Errorf("touchstone: line %d: s-parameter data before option line", lineNo)
			}
			for _, field := range strings.Fields(text) {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, fmt.Errorf("touchstone: line %d: bad value %q", lineNo, field)
				}
				values = append(values, v)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("touchstone: %w", err)
	}

	n.Comments = strings.Join(comments, "\n")

	// A two-port record is nine values wide. The noise parameter section,
	// when present, starts at the first frequency that runs backwards.
	end := len(values)
	for i := 9; i < len(values); i += 9 {
		if values[i] < values[i-9] {
			end = i
			break
		}
	}
	noise := values[end:]
	values = values[:end]

	if len(values)%9 != 0 {
		return nil, errors.New("touchstone: incomplete s-parameter record")
	}
	if len(noise)%5 != 0 {
		return nil, errors.New("touchstone: incomplete noise parameter record")
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	mult := frequencyMult[n.FrequencyUnit]
	n.Records = make([]Record, 0, len(values)/9)
	for i := 0; i < len(values); i += 9 {
		rec := Record{FrequencyHz: values[i] * mult}
		copy(rec.Values[:], values[i+1:i+9])
		n.Records = append(n.Records, rec)
	}

	return n, nil
}

// parseOptionLine fills in the option line defaults before validating, so
// that "# MHz" reads as "# MHz S MA R 50".
func (n *Network) parseOptionLine(line string) error {
	toks := strings.Fields(strings.TrimPrefix(line, "#"))
	defaults := []string{"ghz", "s", "ma", "r", "50"}
	for len(toks) < len(defaults) {
		toks = append(toks, defaults[len(toks)])
	}

	if _, ok := frequencyMult[toks[0]]; !ok {
		return fmt.Errorf("unknown frequency unit %q", toks[0])
	}
	if toks[1] != "s" {
		return fmt.Errorf("unsupported parameter type %q", toks[1])
	}
	switch Format(toks[2]) {
	case FormatMA, FormatDB, FormatRI:
	default:
		return fmt.Errorf("unknown format %q", toks[2])
	}

	resistance, err := strconv.ParseFloat(toks[4], 64)
	if err != nil {
		return fmt.Errorf("bad reference resistance %q", toks[4])
	}

	n.FrequencyUnit = toks[0]
	n.Format = Format(toks[2])
	n.ResistanceOhm = resistance

	return nil
}
