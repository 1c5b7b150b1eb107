package aggregate

import (
	"encoding/json"
	"sync"

	"mortar/lib/errco"
	"mortar/lib/model"
)

// OffsetStore holds the json object whose top level keys override the composite status
type OffsetStore struct {
	mu     sync.RWMutex
	fields map[string]json.RawMessage
}

// NewOffsetStore returns an empty offset store
func NewOffsetStore() *OffsetStore {
	return &OffsetStore{fields: map[string]json.RawMessage{}}
}

// Get returns the current offset object
func (s *OffsetStore) Get() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.Marshal(s.fields)
	return data
}

// Set replaces the offset with the json object in data
func (s *OffsetStore) Set(data []byte) *errco.MrtLog {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_1, errco.ERROR_OFFSET_INVALID, "offset must be a json object")
	}

	s.mu.Lock()
	s.fields = fields
	s.mu.Unlock()

	return nil
}

// Len returns the number of overridden keys
func (s *OffsetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fields)
}

// Merge returns the json of doc with the offset keys set over its top level keys
func (s *OffsetStore) Merge(doc *model.StatusDocument) ([]byte, *errco.MrtLog) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_MARSHAL, err.Error())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.fields) == 0 {
		return data, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_UNMARSHAL, err.Error())
	}
	for k, v := range s.fields {
		merged[k] = v
	}

	data, err = json.Marshal(merged)
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_MARSHAL, err.Error())
	}

	return data, nil
}
