package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"fieldsync/internal/logging"
)

// Entry is one parsed JSON log line. Raw keeps the original text for lines
// that are not JSON.
type Entry struct {
	Time      string
	Level     string
	Message   string
	Component string
	EventType string
	Store     string
	ItemID    string
	Fields    map[string]string
	Raw       string
}

var reservedKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "source": {},
	logging.FieldComponent: {},
	logging.FieldEventType: {},
	logging.FieldStore:     {},
	logging.FieldItemID:    {},
}

// ParseEntry decodes a JSON log line. Lines that fail to decode come back
// with only Raw set.
func ParseEntry(line []byte) Entry {
	entry := Entry{Raw: string(line)}
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return entry
	}
	entry.Time = stringField(fields, "ts")
	entry.Level = strings.ToLower(stringField(fields, "level"))
	entry.Message = stringField(fields, "msg")
	entry.Component = stringField(fields, logging.FieldComponent)
	entry.EventType = stringField(fields, logging.FieldEventType)
	entry.Store = stringField(fields, logging.FieldStore)
	entry.ItemID = stringField(fields, logging.FieldItemID)
	for key, value := range fields {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]string)
		}
		entry.Fields[key] = fmt.Sprint(value)
	}
	return entry
}

func stringField(fields map[string]any, key string) string {
	value, ok := fields[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// Structured reports whether the line decoded as JSON.
func (e Entry) Structured() bool {
	return e.Level != "" || e.Message != ""
}

// Format renders the entry on one line with extra fields in key order.
func (e Entry) Format() string {
	if !e.Structured() {
		return e.Raw
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", e.Time, strings.ToUpper(e.Level))
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Store != "" {
		fmt.Fprintf(&b, " store=%s", e.Store)
	}
	if e.ItemID != "" {
		fmt.Fprintf(&b, " item=%s", e.ItemID)
	}
	if e.EventType != "" {
		fmt.Fprintf(&b, " event=%s", e.EventType)
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, e.Fields[key])
	}
	return b.String()
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	MinLevel  string
	Component string
	EventType string
	Store     string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "warning": 2, "error": 3}

// Match reports whether entry passes the filter. Unstructured lines pass only
// an empty filter.
func (f Filter) Match(entry Entry) bool {
	if f == (Filter{}) {
		return true
	}
	if !entry.Structured() {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		if ok && levelRank[entry.Level] < want {
			return false
		}
	}
	if f.Component != "" && !strings.EqualFold(f.Component, entry.Component) {
		return false
	}
	if f.EventType != "" && !strings.EqualFold(f.EventType, entry.EventType) {
		return false
	}
	if f.Store != "" && !strings.EqualFold(f.Store, entry.Store) {
		return false
	}
	return true
}
