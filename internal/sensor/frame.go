package sensor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// FrameScanner splits a child process's stdout into brace-balanced JSON
// object chunks. Frames may span multiple lines, so a plain bufio.Scanner
// on newlines is not sufficient; this tracks brace depth and string-escape
// state across reads.
type FrameScanner struct {
	r   *bufio.Reader
	buf []byte
}

// NewFrameScanner wraps a reader (typically a child process's Stdout pipe).
func NewFrameScanner(r io.Reader) *FrameScanner {
	return &FrameScanner{r: bufio.NewReaderSize(r, 4096)}
}

// Next blocks until a complete brace-balanced JSON object has been read. It
// returns io.EOF when the underlying reader ends between frames, and a
// truncated-frame error wrapping the read error when it ends mid-frame.
// Bytes outside of any object (whitespace, stray text) are discarded.
func (f *FrameScanner) Next() ([]byte, error) {
	depth := 0
	inString := false
	escaped := false
	started := false
	f.buf = f.buf[:0]

	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if started {
				return nil, fmt.Errorf("frame scanner: truncated frame: %w", err)
			}
			return nil, err
		}

		if !started {
			if b == '{' {
				started = true
				depth = 1
				f.buf = append(f.buf, b)
			}
			continue
		}

		f.buf = append(f.buf, b)

		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case !inString && b == '{':
			depth++
		case !inString && b == '}':
			depth--
			if depth == 0 {
				out := make([]byte, len(f.buf))
				copy(out, f.buf)
				return out, nil
			}
		}
	}
}

// inertialChannel is the shape of one named channel within an inertial
// frame: {"values": [x, y, z, ...], "timestamp"?: number}.
type inertialChannel struct {
	Values    []float64 `json:"values"`
	Timestamp *float64  `json:"timestamp"`
}

// ParseInertialFrame extracts the canonical channel from a raw accel/gyro
// frame: the first top-level field whose value is an object with a numeric
// "values" array of length >= 3. fallbackT is used when the frame carries
// no "timestamp" field.
func ParseInertialFrame(raw []byte, fallbackT float64) (values []float64, t float64, err error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, 0, fmt.Errorf("malformed frame: %w", err)
	}

	// obj does not keep key order, so walk the already-validated object
	// again with a token decoder to visit fields in document order.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.Token() // opening brace
	for dec.More() {
		dec.Token() // field name
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			break
		}
		var ch inertialChannel
		if err := json.Unmarshal(v, &ch); err != nil {
			continue
		}
		if len(ch.Values) >= 3 {
			t := fallbackT
			if ch.Timestamp != nil {
				t = *ch.Timestamp
			}
			return ch.Values, t, nil
		}
	}
	return nil, 0, fmt.Errorf("malformed frame: no channel with >=3 numeric values")
}

// gpsFrame is the shape of one GPS child line.
type gpsFrame struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Speed     float64  `json:"speed"`
	Altitude  *float64 `json:"altitude"`
	Bearing   *float64 `json:"bearing"`
	Provider  string   `json:"provider"`
	Timestamp *float64 `json:"timestamp"`
}

// ParseGPSFrame decodes one GPS child line into a GpsSample. fallbackT is
// used when the frame carries no "timestamp" field.
func ParseGPSFrame(raw []byte, fallbackT float64) (GpsSample, error) {
	var f gpsFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return GpsSample{}, fmt.Errorf("malformed gps frame: %w", err)
	}
	t := fallbackT
	if f.Timestamp != nil {
		t = *f.Timestamp
	}
	provider := f.Provider
	if len(provider) > 8 {
		provider = provider[:8]
	}
	return GpsSample{
		T:         t,
		Lat:       f.Latitude,
		Lon:       f.Longitude,
		AccuracyM: float32(f.Accuracy),
		SpeedMS:   float32(f.Speed),
		Provider:  provider,
	}, nil
}
