package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllPassed(t *testing.T) {
	tests := []struct {
		name    string
		results []ValidationResult
		want    bool
	}{
		{
			name:    "empty list is valid",
			results: nil,
			want:    true,
		},
		{
			name: "all passing",
			results: []ValidationResult{
				Pass(CheckBurned),
				Pass(CheckLiquidity),
			},
			want: true,
		},
		{
			name: "one failure",
			results: []ValidationResult{
				Pass(CheckBurned),
				Fail(CheckLiquidity, "Insufficient liquidity"),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AllPassed(tt.results))
		})
	}
}

func TestFailureReasons(t *testing.T) {
	results := []ValidationResult{
		Pass(CheckBurned),
		Fail(CheckLiquidity, "Insufficient liquidity"),
		Fail(CheckMutable, "metadata is mutable"),
	}

	reasons := FailureReasons(results)
	assert.Len(t, reasons, 2)
	assert.Contains(t, reasons, "Insufficient liquidity")
	assert.Contains(t, reasons, "metadata is mutable")

	assert.Empty(t, FailureReasons([]ValidationResult{Pass(CheckBurned)}))
}
