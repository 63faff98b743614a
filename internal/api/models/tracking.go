package models

// TrackingStartRequest optionally overrides the watch options.
type TrackingStartRequest struct {
	HighAccuracy *bool `json:"highAccuracy,omitempty"`
	TimeoutMs    *int  `json:"timeoutMs,omitempty"`
	MaximumAgeMs *int  `json:"maximumAgeMs,omitempty"`
}

// Position is a location fix as seen by API clients.
type Position struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Accuracy     float64 `json:"accuracy"`
	CapturedAtMs int64   `json:"capturedAtMs"`
}

// PositionError describes why location delivery stopped.
type PositionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TrackingStatus is the response body of GET /v1/tracking/status.
type TrackingStatus struct {
	Tracking            bool           `json:"tracking"`
	State               string         `json:"state"`
	ActiveDestinationID *string        `json:"activeDestinationId,omitempty"`
	DistanceMeters      *float64       `json:"distanceMeters,omitempty"`
	SpeedMps            *float64       `json:"speedMps,omitempty"`
	ETAMinutes          *float64       `json:"etaMinutes,omitempty"`
	Distance            string         `json:"distance,omitempty"`
	ETA                 string         `json:"eta,omitempty"`
	LastPosition        *Position      `json:"lastPosition,omitempty"`
	Samples             int            `json:"samples"`
	Path                string         `json:"path,omitempty"`
	LastError           *PositionError `json:"lastError,omitempty"`
	StartedAt           *Timestamp     `json:"startedAt,omitempty"`
}

// PermissionResponse is the response body of POST /v1/tracking/permission.
type PermissionResponse struct {
	Granted  bool           `json:"granted"`
	Position *Position      `json:"position,omitempty"`
	Error    *PositionError `json:"error,omitempty"`
}
