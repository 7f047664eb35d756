package pcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalise(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical form unchanged", "SW1A 1AA", "SW1A 1AA"},
		{"lowercase", "sw1a 1aa", "SW1A 1AA"},
		{"no space", "SW1A1AA", "SW1A 1AA"},
		{"multiple internal spaces", "sw1a  1aa", "SW1A 1AA"},
		{"surrounding whitespace", "  EC1A 1BB  ", "EC1A 1BB"},
		{"short district", "M1 1AE", "M1 1AE"},
		{"double digit district", "CR2 6XH", "CR2 6XH"},
		{"four char outward", "DN55 1PT", "DN55 1PT"},
		{"letter in district", "W1A 0AX", "W1A 0AX"},
		{"empty", "", ""},
		{"garbage", "NOT A POSTCODE", ""},
		{"outward only", "SW1A", ""},
		{"inward only", "1AA", ""},
		{"too many outward letters", "ABC1 1AA", ""},
		{"digit in inward letters", "SW1A 1A1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalise(tt.in))
		})
	}
}

func TestNormaliseIdempotent(t *testing.T) {
	first := Normalise("ec1a1bb")
	assert.Equal(t, first, Normalise(first))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("SW1A 1AA"))
	assert.True(t, Valid("m1 1ae"))
	assert.False(t, Valid("12345"))
	assert.False(t, Valid(""))
}

func TestNoSpace(t *testing.T) {
	assert.Equal(t, "SW1A1AA", NoSpace("SW1A 1AA"))
	assert.Equal(t, "M11AE", NoSpace("M1 1AE"))
}
