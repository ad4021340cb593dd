package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"servicetracker/internal/models"
)

// ErrDeserialization reports a persisted record list that could not be decoded.
var ErrDeserialization = errors.New("malformed service records")

// EncodeRecords serialises the full record list.
func EncodeRecords(records []models.ServiceRecord) (string, error) {
	if records == nil {
		records = []models.ServiceRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode services: %w", err)
	}
	return string(data), nil
}

// DecodeRecords parses a serialised record list. Records persisted without an
// id get a fresh one. A JSON null decodes to an empty list.
func DecodeRecords(raw string) ([]models.ServiceRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return []models.ServiceRecord{}, nil
	}
	var records []models.ServiceRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if records == nil {
		return []models.ServiceRecord{}, nil
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if (records[i].EndTime == nil) != (records[i].Duration == nil) {
			return nil, fmt.Errorf("%w: record %d has endTime and duration out of step", ErrDeserialization, i)
		}
	}
	return records, nil
}
