package models

// Destination is a place the user wants to be alerted about.
type Destination struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Address             string     `json:"address"`
	Lat                 float64    `json:"lat"`
	Lng                 float64    `json:"lng"`
	NotifyBeforeMinutes float64    `json:"notifyBeforeMinutes"`
	RadiusMeters        float64    `json:"radiusMeters"`
	IsActive            bool       `json:"isActive"`
	ArrivedAt           *Timestamp `json:"arrivedAt,omitempty"`
	CreatedAt           Timestamp  `json:"createdAt"`
	UpdatedAt           Timestamp  `json:"updatedAt"`
}

// DestinationList is the response body of GET /v1/destinations.
type DestinationList struct {
	Items []Destination `json:"items"`
}

// DestinationCreateRequest is the request body for creating a destination.
// Lat and Lng are pointers so that a missing coordinate can be told apart
// from the equator or the prime meridian.
type DestinationCreateRequest struct {
	Name                string   `json:"name"`
	Address             string   `json:"address"`
	Lat                 *float64 `json:"lat"`
	Lng                 *float64 `json:"lng"`
	NotifyBeforeMinutes *float64 `json:"notifyBeforeMinutes,omitempty"`
	RadiusMeters        *float64 `json:"radiusMeters,omitempty"`
	IsActive            *bool    `json:"isActive,omitempty"`
}

// DestinationUpdateRequest is the request body for a partial update.
type DestinationUpdateRequest struct {
	Name                *string  `json:"name,omitempty"`
	Address             *string  `json:"address,omitempty"`
	Lat                 *float64 `json:"lat,omitempty"`
	Lng                 *float64 `json:"lng,omitempty"`
	NotifyBeforeMinutes *float64 `json:"notifyBeforeMinutes,omitempty"`
	RadiusMeters        *float64 `json:"radiusMeters,omitempty"`
	IsActive            *bool    `json:"isActive,omitempty"`
}
