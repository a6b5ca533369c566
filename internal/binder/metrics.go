package binder

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Metrics is an append-only mapping of metric name to value.
// Once a name is recorded its value never changes.
type Metrics struct {
	values map[string]float64
}

// NewMetrics seeds a metric set from a plain map.
func NewMetrics(m map[string]float64) Metrics {
	out := Metrics{values: make(map[string]float64, len(m))}
	for k, v := range m {
		out.values[k] = v
	}
	return out
}

// Record adds a metric. Recording an existing name or a non-finite value fails.
func (m *Metrics) Record(name string, v float64) error {
	if name == "" {
		return fmt.Errorf("record metric: empty name")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("record metric %s: non-finite value %v", name, v)
	}
	if m.values == nil {
		m.values = make(map[string]float64)
	}
	if _, ok := m.values[name]; ok {
		return fmt.Errorf("%w: %s", ErrMetricRecorded, name)
	}
	m.values[name] = v
	return nil
}

// Merge records every metric from src that is not present yet and returns the
// names it added, sorted. Existing values win.
func (m *Metrics) Merge(src map[string]float64) ([]string, error) {
	names := make([]string, 0, len(src))
	for k := range src {
		names = append(names, k)
	}
	sort.Strings(names)

	added := make([]string, 0, len(names))
	for _, k := range names {
		if m.Has(k) {
			continue
		}
		if err := m.Record(k, src[k]); err != nil {
			return added, err
		}
		added = append(added, k)
	}
	return added, nil
}

func (m Metrics) Get(name string) (float64, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m Metrics) Has(name string) bool {
	_, ok := m.values[name]
	return ok
}

func (m Metrics) Len() int { return len(m.values) }

// Names returns the recorded metric names in sorted order.
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m.values))
	for k := range m.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the recorded values.
func (m Metrics) Map() map[string]float64 {
	out := make(map[string]float64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	if m.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.values)
}

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = NewMetrics(raw)
	return nil
}
