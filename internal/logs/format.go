package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

var headerKeys = map[string]struct{}{
	"ts":        {},
	"level":     {},
	"msg":       {},
	"component": {},
}

// FormatLine renders one JSON log record as
// "15:04:05 LEVEL [component] message key=value ...". Lines that are not
// JSON objects are returned unchanged.
func FormatLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return line
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return line
	}

	var b strings.Builder
	if ts, ok := record["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			b.WriteString(parsed.Local().Format(time.TimeOnly))
		} else {
			b.WriteString(ts)
		}
		b.WriteByte(' ')
	}
	level, _ := record["level"].(string)
	if level == "" {
		level = "info"
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(level))
	if component, ok := record["component"].(string); ok && component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteByte(']')
	}
	if msg, ok := record["msg"].(string); ok {
		b.WriteByte(' ')
		b.WriteString(msg)
	}

	keys := make([]string, 0, len(record))
	for key := range record {
		if _, skip := headerKeys[key]; !skip {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(formatValue(record[key]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		if strings.ContainsAny(value, " \t\"=") {
			return fmt.Sprintf("%q", value)
		}
		return value
	case nil:
		return "null"
	case float64, bool:
		return fmt.Sprint(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	}
}
