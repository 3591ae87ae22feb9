package render

// Landmark is a labelled reference point drawn under the markers.
type Landmark struct {
	Name string
	Lon  float64
	Lat  float64
}

// MajorCities are drawn on every snapshot for orientation.
var MajorCities = []Landmark{
	{"New York", -74.006, 40.7128},
	{"Los Angeles", -118.2437, 34.0522},
	{"Chicago", -87.6298, 41.8781},
	{"Houston", -95.3698, 29.7604},
	{"Phoenix", -112.0740, 33.4484},
	{"Philadelphia", -75.1652, 39.9526},
	{"San Antonio", -98.4936, 29.4241},
	{"San Diego", -117.1611, 32.7157},
	{"Dallas", -96.7970, 32.7767},
	{"San Jose", -121.8863, 37.3382},
}
