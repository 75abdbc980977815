package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name     string
		num, den int64
		want     float64
	}{
		{"zero denominator", 5, 0, 0},
		{"zero numerator", 0, 10, 0},
		{"exact", 5, 100, 5},
		{"two decimals", 1, 3, 33.33},
		{"rounds half away from zero", 1, 8, 12.5},
		{"rounds up", 2, 3, 66.67},
		{"third decimal five", 1, 16, 6.25},
		{"above hundred", 3, 2, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rate(tt.num, tt.den))
		})
	}
}

func TestRate_HalfAwayFromZero(t *testing.T) {
	// 1/800 = 0.125%
	assert.Equal(t, 0.13, Rate(1, 800))
}

func TestCTRAndConversionRate(t *testing.T) {
	assert.Equal(t, 5.0, CTR(100, 5))
	assert.Equal(t, 20.0, ConversionRate(5, 1))
	assert.Zero(t, CTR(0, 3))
	assert.Zero(t, ConversionRate(0, 3))
}
