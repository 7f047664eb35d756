package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/addressing"
)

func TestNewAddress(t *testing.T) {
	addr, err := NewAddress(123, "node", 51.5, -0.12, AddressFields{
		HouseNumber:  "10",
		Street:       "Downing Street",
		City:         "London",
		PostcodeRaw:  "SW1A 2AA",
		PostcodeNorm: "SW1A 2AA",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(123), addr.OSMID)
	assert.Equal(t, "node", addr.OSMType)
	require.NotNil(t, addr.HouseNumber)
	assert.Equal(t, "10", *addr.HouseNumber)
	require.NotNil(t, addr.Street)
	assert.Equal(t, "Downing Street", *addr.Street)
	assert.Nil(t, addr.HouseName)
	assert.Nil(t, addr.Flat)
	assert.Nil(t, addr.Suburb)
	assert.Nil(t, addr.County)
}

func TestNewAddressInvalidType(t *testing.T) {
	_, err := NewAddress(1, "relation", 51.5, -0.12, AddressFields{})
	assert.Error(t, err)

	_, err = NewAddress(1, "", 51.5, -0.12, AddressFields{})
	assert.Error(t, err)
}

func TestNewAddressCoordinateRange(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		ok       bool
	}{
		{"valid", 51.5, -0.12, true},
		{"lat too high", 90.1, 0, false},
		{"lat too low", -90.1, 0, false},
		{"lon too high", 0, 180.1, false},
		{"lon too low", 0, -180.1, false},
		{"boundary", 90, -180, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAddress(1, "way", tt.lat, tt.lon, AddressFields{})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewAddressTruncation(t *testing.T) {
	long := strings.Repeat("a", 500)
	addr, err := NewAddress(1, "node", 0, 0, AddressFields{
		HouseNumber: long,
		Street:      long,
		City:        long,
	})
	require.NoError(t, err)

	assert.Len(t, *addr.HouseNumber, addressing.MaxHouseNumber)
	assert.Len(t, *addr.Street, addressing.MaxStreet)
	assert.Len(t, *addr.City, addressing.MaxCity)
}
