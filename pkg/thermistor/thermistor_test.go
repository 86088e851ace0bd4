package thermistor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedForm(raw float64) float64 {
	l := math.Log(3.3/raw - 1.0)
	return 1.0 / (l/4190.0 + 1.0/298.15)
}

func TestTemperature(t *testing.T) {
	tests := []struct {
		name string
		raw  uint16
	}{
		{"raw 1", 1},
		{"raw 2", 2},
		{"raw 3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Default.Temperature(tt.raw)
			assert.True(t, Valid(got))
			assert.InDelta(t, closedForm(float64(tt.raw)), float64(got), 0.01)
		})
	}
}

func TestDecode_ClosedForm16384(t *testing.T) {
	// 0x4000 = 16384; 3.3/16384 - 1 is negative so the closed form is NaN.
	want := closedForm(16384)
	got := Decode([]byte{0x40, 0x00})

	require.Len(t, got, 1)
	assert.True(t, math.IsNaN(want))
	assert.True(t, math.IsNaN(float64(got[0])))
	assert.False(t, Valid(got[0]))
}

func TestDecode_Lengths(t *testing.T) {
	tests := []struct {
		name  string
		bytes int
		want  int
	}{
		{"empty", 0, 0},
		{"single byte", 1, 0},
		{"one sample", 2, 1},
		{"seven bytes", 7, 3},
		{"eight bytes", 8, 4},
		{"odd large", 2*64 + 1, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, tt.bytes)
			for i := range b {
				b[i] = 0x00
				if i%2 == 1 {
					b[i] = 0x02
				}
			}
			assert.Len(t, Decode(b), tt.want)
		})
	}
}

func TestDecode_DropsTrailingByte(t *testing.T) {
	got := Decode([]byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00})
	require.Len(t, got, 3)
	assert.InDelta(t, closedForm(1), float64(got[0]), 0.01)
	assert.InDelta(t, closedForm(2), float64(got[1]), 0.01)
	assert.InDelta(t, closedForm(3), float64(got[2]), 0.01)
}

func TestDecode_Pure(t *testing.T) {
	b := []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x12, 0x34}
	first := Decode(b)
	second := Decode(b)

	require.Len(t, second, len(first))
	for i := range first {
		if math.IsNaN(float64(first[i])) {
			assert.True(t, math.IsNaN(float64(second[i])))
			continue
		}
		assert.Equal(t, first[i], second[i])
	}
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x12, 0x34}, b)
}

func TestDecoder_CustomNumerator(t *testing.T) {
	// A full-scale numerator keeps ordinary ADC codes in range.
	d := NewDecoder(65535, DefaultBeta, DefaultT0)
	got := d.Temperature(32767)
	assert.True(t, Valid(got))
	assert.InDelta(t, 298.15, float64(got), 0.01)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(300))
	assert.False(t, Valid(float32(math.NaN())))
	assert.False(t, Valid(float32(math.Inf(1))))
	assert.False(t, Valid(float32(math.Inf(-1))))
}

func TestKelvinToCelsius(t *testing.T) {
	assert.InDelta(t, 25.0, float64(KelvinToCelsius(298.15)), 1e-4)
}
