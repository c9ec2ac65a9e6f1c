package emrcore

import (
	"bytes"
	"encoding/json"
	"errors"
)

// paginationFields mark a paginated list. Such bodies are returned whole so
// the caller keeps the cursor.
var paginationFields = []string{"next_page_url", "next_page", "nextPage"}

var errInvalidJSON = errors.New("body is not valid JSON")

// unwrapEnvelope returns the "data" member of an object body, or the whole
// body when there is no data member or a pagination field sits beside it.
// An empty body yields JSON null.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, errInvalidJSON
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		// arrays, strings, numbers
		return json.RawMessage(trimmed), nil
	}

	data, ok := obj["data"]
	if !ok {
		return json.RawMessage(trimmed), nil
	}
	for _, field := range paginationFields {
		if _, paged := obj[field]; paged {
			return json.RawMessage(trimmed), nil
		}
	}
	return data, nil
}
