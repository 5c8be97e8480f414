package carrier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// updatedDateLayouts are tried in order. Layouts without an offset are read as UTC.
var updatedDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type LogEntry struct {
	Status      string    `json:"status"`
	UpdatedDate time.Time `json:"updatedDate"`
}

func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status      string  `json:"status"`
		UpdatedDate *string `json:"updatedDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Status = raw.Status
	e.UpdatedDate = time.Time{}
	if raw.UpdatedDate == nil || strings.TrimSpace(*raw.UpdatedDate) == "" {
		return nil
	}

	t, err := parseUpdatedDate(strings.TrimSpace(*raw.UpdatedDate))
	if err != nil {
		return err
	}
	e.UpdatedDate = t
	return nil
}

func parseUpdatedDate(s string) (time.Time, error) {
	for _, layout := range updatedDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("carrier: unrecognised updatedDate %q", s)
}

// OrderLog is the tracking history the carrier keeps for one parcel.
type OrderLog struct {
	Logs []LogEntry `json:"logs"`
}

type orderLogResponse struct {
	Success bool     `json:"success"`
	Data    OrderLog `json:"data"`
}
