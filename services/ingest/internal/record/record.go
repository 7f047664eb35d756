// Package record defines the validated value types produced by the source
// parsers and consumed by the batch loader. A record is built once by a
// parser and never mutated afterwards.
package record

import (
	"fmt"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/addressing"
)

// Coordinate is one row of the fixed-column coordinate source: a postcode
// with National Grid and derived WGS84 coordinates.
type Coordinate struct {
	Postcode          string // raw form as found in the source
	PostcodeNorm      string
	Easting           int
	Northing          int
	Latitude          float64
	Longitude         float64
	PositionalQuality int
	CountryCode       string
}

// Admin is one row of the administrative-lookup source: the geography codes
// and lifecycle dates attached to a postcode.
type Admin struct {
	PostcodeNorm       string
	CountryCode        string
	RegionCode         *string
	LocalAuthority     *string
	ParliamentaryConst *string
	WardCode           *string
	ParishCode         *string
	DateIntroduced     *string
	DateTerminated     *string
	IsTerminated       bool
}

// Address is one address element from the geographic extract, keyed by the
// source-native (OSMID, OSMType) identity pair.
type Address struct {
	OSMID        int64
	OSMType      string
	HouseNumber  *string
	HouseName    *string
	Flat         *string
	Street       *string
	Suburb       *string
	City         *string
	County       *string
	PostcodeRaw  *string
	PostcodeNorm *string
	Latitude     float64
	Longitude    float64
}

// AddressFields carries the raw tag values for NewAddress. Empty strings
// become NULLs; over-long values are truncated to the storage limits.
type AddressFields struct {
	HouseNumber  string
	HouseName    string
	Flat         string
	Street       string
	Suburb       string
	City         string
	County       string
	PostcodeRaw  string
	PostcodeNorm string
}

// NewAddress validates and assembles an Address. osmType must be "node" or
// "way"; coordinates must be finite WGS84 values.
func NewAddress(osmID int64, osmType string, lat, lon float64, f AddressFields) (Address, error) {
	if osmType != "node" && osmType != "way" {
		return Address{}, fmt.Errorf("invalid element type %q", osmType)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Address{}, fmt.Errorf("coordinates out of range: %f, %f", lat, lon)
	}

	return Address{
		OSMID:        osmID,
		OSMType:      osmType,
		HouseNumber:  optional(f.HouseNumber, addressing.MaxHouseNumber),
		HouseName:    optional(f.HouseName, addressing.MaxHouseName),
		Flat:         optional(f.Flat, addressing.MaxFlat),
		Street:       optional(f.Street, addressing.MaxStreet),
		Suburb:       optional(f.Suburb, addressing.MaxSuburb),
		City:         optional(f.City, addressing.MaxCity),
		County:       optional(f.County, addressing.MaxCounty),
		PostcodeRaw:  optional(f.PostcodeRaw, addressing.MaxPostcodeRaw),
		PostcodeNorm: optional(f.PostcodeNorm, addressing.MaxPostcodeRaw),
		Latitude:     lat,
		Longitude:    lon,
	}, nil
}

func optional(s string, max int) *string {
	if s == "" {
		return nil
	}
	s = addressing.Truncate(s, max)
	return &s
}
