package extractor

// Record is an ordered mapping of named metadata fields produced for one
// source. Field order is preserved so tabular sinks emit stable columns.
type Record struct {
	names  []string
	values map[string]interface{}
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{
		values: make(map[string]interface{}),
	}
}

// Set stores a field value, appending the name on first write
func (r *Record) Set(name string, value interface{}) {
	if _, exists := r.values[name]; !exists {
		r.names = append(r.names, name)
	}
	r.values[name] = value
}

// Get returns a field value and whether it is present
func (r *Record) Get(name string) (interface{}, bool) {
	v, ok := r.values[name]
	return v, ok
}

// GetString returns the field rendered as a string, or "" if absent
func (r *Record) GetString(name string) string {
	v, ok := r.values[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return toString(v)
}

// GetInt64 returns a numeric field as int64; ok is false when the field is
// absent or not numeric.
func (r *Record) GetInt64(name string) (int64, bool) {
	v, present := r.values[name]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Fields returns the field names in insertion order
func (r *Record) Fields() []string {
	return append([]string{}, r.names...)
}

// Len returns the number of fields
func (r *Record) Len() int {
	return len(r.names)
}
