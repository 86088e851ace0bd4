// Package thermistor converts raw MU samples to temperatures with the NTC beta model.
package thermistor

import (
	"encoding/binary"

	"github.com/chewxy/math32"
)

const (
	// DefaultNumerator is the divider constant in L = ln(N/raw - 1).
	DefaultNumerator = 3.3
	// DefaultBeta is the thermistor B coefficient.
	DefaultBeta = 4190.0
	// DefaultT0 is the reference temperature in Kelvin.
	DefaultT0 = 298.15
	// SampleSize is the width of one raw sample on the wire.
	SampleSize = 2
)

// Decoder converts big-endian 2-byte raw samples to Kelvin.
// The zero value is not usable; use NewDecoder or Default.
type Decoder struct {
	Numerator float32
	Beta      float32
	T0        float32
}

// Default is the decoder with the MU board coefficients.
var Default = NewDecoder(DefaultNumerator, DefaultBeta, DefaultT0)

// NewDecoder creates a decoder with the given coefficients.
func NewDecoder(numerator, beta, t0 float64) Decoder {
	return Decoder{
		Numerator: float32(numerator),
		Beta:      float32(beta),
		T0:        float32(t0),
	}
}

// Decode decodes b with the default coefficients.
func Decode(b []byte) []float32 {
	return Default.Decode(b)
}

// Decode groups b into complete 2-byte samples, drops a trailing odd byte
// and converts each sample. Singular inputs yield NaN or ±Inf.
func (d Decoder) Decode(b []byte) []float32 {
	n := len(b) / SampleSize
	out := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		raw := binary.BigEndian.Uint16(b[i*SampleSize:])
		out = append(out, d.Temperature(raw))
	}
	return out
}

// Temperature converts a single raw sample to Kelvin.
func (d Decoder) Temperature(raw uint16) float32 {
	l := math32.Log(d.Numerator/float32(raw) - 1.0)
	return 1.0 / (l/d.Beta + 1.0/d.T0)
}

// Valid reports whether a decoded value is a finite number.
func Valid(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// KelvinToCelsius converts an absolute temperature to degrees Celsius.
func KelvinToCelsius(k float32) float32 {
	return k - 273.15
}
