package geo

// Place is a geocoding candidate returned by city search.
type Place struct {
	Formatted string  `json:"formatted"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}
