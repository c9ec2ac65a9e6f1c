package emrcore

import "testing"

func TestUnwrapEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"data object", `{"data":{"id":1}}`, `{"id":1}`},
		{"data array", `{"data":[1,2,3],"meta":{"total":3}}`, `[1,2,3]`},
		{"data null", `{"data":null}`, `null`},
		{"no data member", `{"id":1}`, `{"id":1}`},
		{"top level array", `[{"id":1}]`, `[{"id":1}]`},
		{"top level string", `"ok"`, `"ok"`},
		{"paginated next_page_url", `{"data":[1],"next_page_url":"/x?page=2"}`, `{"data":[1],"next_page_url":"/x?page=2"}`},
		{"paginated next_page", `{"data":[1],"next_page":2}`, `{"data":[1],"next_page":2}`},
		{"paginated nextPage null", `{"data":[1],"nextPage":null}`, `{"data":[1],"nextPage":null}`},
		{"pagination field without data", `{"items":[1],"next_page":2}`, `{"items":[1],"next_page":2}`},
		{"surrounding whitespace", " \n{\"data\":true}\n", `true`},
		{"empty body", "", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unwrapEnvelope([]byte(tt.body))
			if err != nil {
				t.Fatalf("unwrapEnvelope() returned error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestUnwrapEnvelopeRejectsInvalidJSON(t *testing.T) {
	for _, body := range []string{"<html>", `{"data":`, "undefined"} {
		if _, err := unwrapEnvelope([]byte(body)); err == nil {
			t.Errorf("Expected error for %q", body)
		}
	}
}
