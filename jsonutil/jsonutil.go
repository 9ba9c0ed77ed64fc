// Package jsonutil contains various utilities for dealing with json data.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// Marshal marshals an object to a json string.
func Marshal(obj any) (string, error) {
	resultB, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshaling object: %w", err)
	}

	return string(resultB), nil
}

// Unmarshal unmarshals the content in string format to an object.
func Unmarshal(jsonContent string, dest any) error {
	if err := json.Unmarshal([]byte(jsonContent), dest); err != nil {
		return fmt.Errorf("unmarshaling JSON content: %w", err)
	}

	return nil
}

// Remarshal marshals an object to Json then parses it back to another object.
// This is useful for example when we want to go from map[string]any
// to a more specific struct type.
func Remarshal(obj any, remarshalledObj any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshaling object: %w", err)
	}

	if err := json.Unmarshal(b, remarshalledObj); err != nil {
		return fmt.Errorf("unmarshaling object: %w", err)
	}

	return nil
}
