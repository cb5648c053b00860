package tracking

import (
	"encoding/json"
	"time"
)

// TrackingResult is the normalized outcome of one lookup. Results served from
// the cache are shared between callers and must not be modified.
type TrackingResult struct {
	TrackingNumber string          `json:"trackingNumber"`
	Success        bool            `json:"success"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data,omitempty"`
	Status         TrackingStatus  `json:"status"`
	Events         []TrackingEvent `json:"events"`
	Summary        TrackingSummary `json:"summary"`
	Error          string          `json:"error,omitempty"`
}

// TrackingStatus is the current shipment status.
type TrackingStatus struct {
	Code        string `json:"code"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// TrackingEvent is one entry of the shipment timeline.
type TrackingEvent struct {
	Time        string `json:"time"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// TrackingSummary holds shipment level details.
type TrackingSummary struct {
	Origin      string   `json:"origin,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Service     string   `json:"service,omitempty"`
	Weight      string   `json:"weight,omitempty"`
	Pieces      string   `json:"pieces,omitempty"`
	SubNumbers  []string `json:"subNumbers,omitempty"`
}

// BatchResult is one record of a batch lookup. Index is the position of the
// input number in the request.
type BatchResult struct {
	Index          int             `json:"index"`
	TrackingNumber string          `json:"trackingNumber"`
	Success        bool            `json:"success"`
	Data           *TrackingResult `json:"data,omitempty"`
	Error          string          `json:"error,omitempty"`
}
