package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Message is the wire form of a sample published by devices and accepted by
// the ingestion endpoint.
type Message struct {
	DeviceID     string  `json:"deviceId,omitempty"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Accuracy     float64 `json:"accuracy"`
	CapturedAtMs int64   `json:"capturedAtMs"`
}

// Validation errors for incoming messages.
var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrInvalidAccuracy  = errors.New("accuracy must be a non-negative number of meters")
	ErrMissingTimestamp = errors.New("capturedAtMs is required")
)

// Validate checks the message's ranges.
func (m Message) Validate() error {
	if math.IsNaN(m.Lat) || m.Lat < -90 || m.Lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(m.Lng) || m.Lng < -180 || m.Lng > 180 {
		return ErrInvalidLongitude
	}
	if math.IsNaN(m.Accuracy) || m.Accuracy < 0 {
		return ErrInvalidAccuracy
	}
	if m.CapturedAtMs <= 0 {
		return ErrMissingTimestamp
	}
	return nil
}

// Sample converts the message to a Sample.
func (m Message) Sample() Sample {
	return Sample{
		Lat:            m.Lat,
		Lng:            m.Lng,
		AccuracyMeters: m.Accuracy,
		CapturedAt:     time.UnixMilli(m.CapturedAtMs).UTC(),
	}
}

// MessageFromSample converts a sample to its wire form.
func MessageFromSample(deviceID string, s Sample) Message {
	return Message{
		DeviceID:     deviceID,
		Lat:          s.Lat,
		Lng:          s.Lng,
		Accuracy:     s.AccuracyMeters,
		CapturedAtMs: s.CapturedAt.UnixMilli(),
	}
}

// DecodeMessage parses and validates a JSON message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding position message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
