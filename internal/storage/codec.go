package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"nodenet/internal/model"
)

var ErrInvalidRecord = errors.New("invalid nodenet record")

func EncodeNodenet(record model.NodenetRecord) ([]byte, error) {
	if record.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidRecord)
	}
	return json.Marshal(record)
}

// DecodeNodenet parses a stored snapshot and rejects records written by a
// different snapshot version.
func DecodeNodenet(data []byte) (model.NodenetRecord, error) {
	var record model.NodenetRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.NodenetRecord{}, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	if err := record.CheckVersion(); err != nil {
		return model.NodenetRecord{}, err
	}
	return record, nil
}

// cloneRecord deep-copies a record through the codec so callers cannot
// mutate stored state.
func cloneRecord(record model.NodenetRecord) (model.NodenetRecord, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return model.NodenetRecord{}, err
	}
	var out model.NodenetRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return model.NodenetRecord{}, err
	}
	return out, nil
}
