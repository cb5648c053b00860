package tracking

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/oliveagle/jsonpath"
)

const (
	statusUnknown     = "unknown"
	statusTextUnknown = "unknown status"
	statusNotFound    = "not_found"
)

// Candidate JSONPath expressions per field. The first non-empty match wins.
var (
	pathStatusCode  = compilePaths("$.status", "$.statusCode")
	pathStatusText  = compilePaths("$.statusText", "$.status")
	pathDescription = compilePaths("$.description")
	pathNotFound    = compilePaths("$.notFound")
	pathEvents      = compilePaths("$.events", "$.trackings")
	pathSubNumbers  = compilePaths("$.expressNumbers", "$.subTrackings")

	pathOrigin      = compilePaths("$.origin", "$.from")
	pathDestination = compilePaths("$.destination", "$.to")
	pathService     = compilePaths("$.service", "$.serviceType")
	pathWeight      = compilePaths("$.weight")
	pathPieces      = compilePaths("$.pieces", "$.quantity")

	pathEventTime        = compilePaths("$.time", "$.timestamp")
	pathEventLocation    = compilePaths("$.location", "$.place")
	pathEventDescription = compilePaths("$.description", "$.desc")
	pathEventStatus      = compilePaths("$.status", "$.statusCode")

	pathSubNumber = compilePaths("$.trackingRef", "$.trackingNumber", "$.number")
)

func compilePaths(exprs ...string) []*jsonpath.Compiled {
	compiled := make([]*jsonpath.Compiled, 0, len(exprs))
	for _, expr := range exprs {
		c, err := jsonpath.Compile(expr)
		if err != nil {
			panic("tracking: invalid JSONPath " + expr + ": " + err.Error())
		}
		compiled = append(compiled, c)
	}
	return compiled
}

// Format builds a TrackingResult from a raw provider payload. Extraction is
// best effort: missing or oddly typed fields fall back to defaults and never
// produce an error.
func Format(trackingNumber string, raw json.RawMessage, now time.Time) *TrackingResult {
	var doc any
	_ = json.Unmarshal(raw, &doc)

	// some provider responses wrap the record in a one-element array
	if arr, ok := doc.([]any); ok {
		doc = nil
		if len(arr) > 0 {
			doc = arr[0]
		}
	}

	return &TrackingResult{
		TrackingNumber: trackingNumber,
		Success:        true,
		Timestamp:      now,
		Data:           raw,
		Status:         extractStatus(doc),
		Events:         extractEvents(doc),
		Summary:        extractSummary(doc),
	}
}

func extractStatus(doc any) TrackingStatus {
	status := TrackingStatus{
		Code:        firstString(doc, pathStatusCode),
		Text:        firstString(doc, pathStatusText),
		Description: firstString(doc, pathDescription),
	}

	if status.Code == "" {
		status.Code = statusUnknown
		if nf, ok := first(doc, pathNotFound).(bool); ok && nf {
			status.Code = statusNotFound
		}
	}
	if status.Text == "" {
		status.Text = statusTextUnknown
	}
	return status
}

func extractEvents(doc any) []TrackingEvent {
	items, _ := first(doc, pathEvents).([]any)

	events := make([]TrackingEvent, 0, len(items))
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			continue
		}
		events = append(events, TrackingEvent{
			Time:        firstString(item, pathEventTime),
			Location:    firstString(item, pathEventLocation),
			Description: firstString(item, pathEventDescription),
			Status:      firstString(item, pathEventStatus),
		})
	}
	return events
}

func extractSummary(doc any) TrackingSummary {
	summary := TrackingSummary{
		Origin:      firstString(doc, pathOrigin),
		Destination: firstString(doc, pathDestination),
		Service:     firstString(doc, pathService),
		Weight:      firstString(doc, pathWeight),
		Pieces:      firstString(doc, pathPieces),
	}

	subs, _ := first(doc, pathSubNumbers).([]any)
	for _, sub := range subs {
		var number string
		if obj, ok := sub.(map[string]any); ok {
			number = firstString(obj, pathSubNumber)
		} else {
			number = scalarString(sub)
		}
		if number != "" {
			summary.SubNumbers = append(summary.SubNumbers, number)
		}
	}
	return summary
}

// first returns the first non-empty match among paths.
func first(doc any, paths []*jsonpath.Compiled) any {
	if _, ok := doc.(map[string]any); !ok {
		return nil
	}
	for _, p := range paths {
		v, err := p.Lookup(doc)
		if err != nil || isEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

// firstString is like first but only accepts values with a scalar rendering.
func firstString(doc any, paths []*jsonpath.Compiled) string {
	if _, ok := doc.(map[string]any); !ok {
		return ""
	}
	for _, p := range paths {
		v, err := p.Lookup(doc)
		if err != nil {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
