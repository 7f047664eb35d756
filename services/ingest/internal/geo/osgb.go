// Package geo converts Ordnance Survey National Grid coordinates to WGS84.
//
// The pipeline only needs this one fixed transform (EPSG:27700 -> EPSG:4326):
// an inverse transverse Mercator projection on the Airy 1830 ellipsoid
// followed by a 7-parameter Helmert datum shift. Constants are the published
// OS values; accuracy is around 5 m, far inside what positional-quality
// codes in the source data justify.
package geo

import "math"

// Airy 1830 (OSGB36) and WGS84 ellipsoids.
const (
	airyA = 6377563.396
	airyB = 6356256.909
	wgsA  = 6378137.0
	wgsB  = 6356752.3141
)

// National Grid transverse Mercator parameters.
const (
	gridScale  = 0.9996012717
	gridLat0   = 49.0 * math.Pi / 180
	gridLon0   = -2.0 * math.Pi / 180
	gridEast0  = 400000.0
	gridNorth0 = -100000.0
)

// Helmert parameters for OSGB36 -> WGS84 (sign-reversed from the published
// WGS84 -> OSGB36 set).
const (
	helmertTX = 446.448
	helmertTY = -125.157
	helmertTZ = 542.060
	helmertS  = -20.4894e-6
	helmertRX = 0.1502 / 3600 * math.Pi / 180
	helmertRY = 0.2470 / 3600 * math.Pi / 180
	helmertRZ = 0.8421 / 3600 * math.Pi / 180
)

// OSGB36ToWGS84 converts National Grid easting/northing to WGS84 latitude
// and longitude in degrees.
func OSGB36ToWGS84(easting, northing float64) (lat, lon float64) {
	phi, lambda := gridToAiry(easting, northing)
	x, y, z := geodeticToCartesian(phi, lambda, airyA, airyB)

	// Helmert shift into the WGS84 datum.
	x2 := helmertTX + (1+helmertS)*x - helmertRZ*y + helmertRY*z
	y2 := helmertTY + helmertRZ*x + (1+helmertS)*y - helmertRX*z
	z2 := helmertTZ - helmertRY*x + helmertRX*y + (1+helmertS)*z

	phi2, lambda2 := cartesianToGeodetic(x2, y2, z2, wgsA, wgsB)
	return phi2 * 180 / math.Pi, lambda2 * 180 / math.Pi
}

// gridToAiry inverts the National Grid projection, returning OSGB36
// latitude/longitude in radians on the Airy 1830 ellipsoid.
func gridToAiry(easting, northing float64) (phi, lambda float64) {
	a, b := airyA, airyB
	e2 := 1 - (b*b)/(a*a)
	n := (a - b) / (a + b)
	n2 := n * n
	n3 := n2 * n

	phi = gridLat0
	m := 0.0
	for {
		phi = (northing-gridNorth0-m)/(a*gridScale) + phi

		ma := (1 + n + 5.0/4.0*n2 + 5.0/4.0*n3) * (phi - gridLat0)
		mb := (3*n + 3*n2 + 21.0/8.0*n3) * math.Sin(phi-gridLat0) * math.Cos(phi+gridLat0)
		mc := (15.0/8.0*n2 + 15.0/8.0*n3) * math.Sin(2*(phi-gridLat0)) * math.Cos(2*(phi+gridLat0))
		md := 35.0 / 24.0 * n3 * math.Sin(3*(phi-gridLat0)) * math.Cos(3*(phi+gridLat0))
		m = b * gridScale * (ma - mb + mc - md)

		if math.Abs(northing-gridNorth0-m) < 1e-5 {
			break
		}
	}

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	nu := a * gridScale / math.Sqrt(1-e2*sinPhi*sinPhi)
	rho := a * gridScale * (1 - e2) / math.Pow(1-e2*sinPhi*sinPhi, 1.5)
	eta2 := nu/rho - 1

	tanPhi := math.Tan(phi)
	tan2 := tanPhi * tanPhi
	tan4 := tan2 * tan2
	tan6 := tan4 * tan2
	secPhi := 1 / cosPhi
	nu3 := nu * nu * nu
	nu5 := nu3 * nu * nu
	nu7 := nu5 * nu * nu

	vii := tanPhi / (2 * rho * nu)
	viii := tanPhi / (24 * rho * nu3) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tanPhi / (720 * rho * nu5) * (61 + 90*tan2 + 45*tan4)
	x := secPhi / nu
	xi := secPhi / (6 * nu3) * (nu/rho + 2*tan2)
	xii := secPhi / (120 * nu5) * (5 + 28*tan2 + 24*tan4)
	xiia := secPhi / (5040 * nu7) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	de := easting - gridEast0
	de2 := de * de
	de3 := de2 * de
	de4 := de2 * de2
	de5 := de4 * de
	de6 := de4 * de2
	de7 := de6 * de

	phi = phi - vii*de2 + viii*de4 - ix*de6
	lambda = gridLon0 + x*de - xi*de3 + xii*de5 - xiia*de7
	return phi, lambda
}

func geodeticToCartesian(phi, lambda, a, b float64) (x, y, z float64) {
	e2 := 1 - (b*b)/(a*a)
	sinPhi := math.Sin(phi)
	nu := a / math.Sqrt(1-e2*sinPhi*sinPhi)

	x = nu * math.Cos(phi) * math.Cos(lambda)
	y = nu * math.Cos(phi) * math.Sin(lambda)
	z = (1 - e2) * nu * sinPhi
	return x, y, z
}

func cartesianToGeodetic(x, y, z, a, b float64) (phi, lambda float64) {
	e2 := 1 - (b*b)/(a*a)
	p := math.Sqrt(x*x + y*y)

	phi = math.Atan2(z, p*(1-e2))
	for i := 0; i < 10; i++ {
		sinPhi := math.Sin(phi)
		nu := a / math.Sqrt(1-e2*sinPhi*sinPhi)
		next := math.Atan2(z+e2*nu*sinPhi, p)
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	lambda = math.Atan2(y, x)
	return phi, lambda
}
