package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap stores a node's output data in a jsonb column.
type JSONBMap map[string]any

func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONBMap) Scan(value any) error {
	if value == nil {
		*j = make(JSONBMap)
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONBMap: value is not []byte")
	}
	if len(b) == 0 {
		*j = make(JSONBMap)
		return nil
	}
	return json.Unmarshal(b, j)
}
