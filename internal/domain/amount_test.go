package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{"1.5", "1500000000000000000"},
		{"0.000000000000000001", "1"},
		{"1000000", "1000000000000000000000000"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"abc",
		"0",
		"-1",
		"NaN",
		"0.0000000000000000001", // 19 decimal places
	} {
		_, err := ParseAmount(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}

func TestFormatAmount(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatAmount(v))
	assert.Equal(t, "0", FormatAmount(nil))
	assert.Equal(t, "0", FormatAmount(new(big.Int)))
}

func TestParseFormatRoundTrip(t *testing.T) {
	v, err := ParseAmount("123.456")
	require.NoError(t, err)
	assert.Equal(t, "123.456", FormatAmount(v))
}
