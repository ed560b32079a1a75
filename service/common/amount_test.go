package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     uint64
	}{
		{"1", 0, 1},
		{"1.5", 6, 1_500_000},
		{"0.000000001", 9, 1},
		{"42", 2, 4200},
	}

	for _, c := range cases {
		got, err := ParseTokenAmount(c.in, c.decimals)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseTokenAmountRejects(t *testing.T) {
	for _, in := range []string{"0", "-1", "0.1234567", "abc", "18446744073709551616"} {
		if _, err := ParseTokenAmount(in, 6); err == nil {
			t.Errorf("expected an error for %q", in)
		}
	}
}

func TestFormatTokenAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatTokenAmount(1_500_000, 6))
	assert.Equal(t, "10", FormatTokenAmount(10, 0))
}
