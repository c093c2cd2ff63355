package datasets

import (
	"encoding/json"
	"strconv"
	"strings"
)

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// hexColor strips a leading '#' and upper-cases GTFS colors ("#00ff00" -> "00FF00").
func hexColor(s string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

// serviceTime zero-pads the hour of an H:MM:SS time. Hours past 23 are
// kept: GTFS service days run past midnight.
func serviceTime(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i == 1 {
		return "0" + s
	}
	return s
}

// ServiceSeconds converts HH:MM:SS to seconds since the start of the
// service day.
func ServiceSeconds(s string) (int64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}

	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

func deriveServiceSeconds(props map[string]any) {
	for _, field := range []string{"arrival_time", "departure_time"} {
		v, ok := props[field].(string)
		if !ok {
			continue
		}
		if secs, ok := ServiceSeconds(v); ok {
			props[strings.TrimSuffix(field, "_time")+"_seconds"] = secs
		}
	}
}

// jsonMember returns a normalizer that pulls one string member out of a
// JSON object cell. Plain strings pass through.
func jsonMember(name string) func(string) string {
	return func(s string) string {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "{") {
			return s
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return s
		}
		v, _ := obj[name].(string)
		return strings.TrimSpace(v)
	}
}
