package models

// Place is a geocoding result.
type Place struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// PlaceList is the response body of GET /v1/geocode.
type PlaceList struct {
	Items []Place `json:"items"`
}
