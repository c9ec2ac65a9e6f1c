package emrcore

import (
	"net/http"
	"strings"
	"testing"
)

const (
	typesTestURL     = "https://emr.example.test"
	testStatusFormat = "Expected status 200, got %d"
)

func TestResponseKindString(t *testing.T) {
	tests := []struct {
		kind   ResponseKind
		name   string
		accept string
	}{
		{KindJSON, "json", "application/json"},
		{KindBinary, "binary", "*/*"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.name {
			t.Errorf("Expected %s, got %s", tt.name, got)
		}
		if got := tt.kind.accept(); got != tt.accept {
			t.Errorf("Expected Accept %s for %s, got %s", tt.accept, tt.name, got)
		}
	}

	var zero ResponseKind
	if zero != KindJSON {
		t.Errorf("Expected zero kind to be KindJSON, got %v", zero)
	}
}

func TestRoundTripperFunc(t *testing.T) {
	callCount := 0

	roundTripper := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		callCount++
		return &http.Response{StatusCode: 200}, nil
	})

	req, _ := http.NewRequest("GET", typesTestURL, nil)
	resp, err := roundTripper.RoundTrip(req)

	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}

	if resp.StatusCode != 200 {
		t.Errorf(testStatusFormat, resp.StatusCode)
	}
}

func TestMiddlewareType(t *testing.T) {
	callOrder := []string{}

	middleware := Middleware(func(req *http.Request, next RoundTripper) (*http.Response, error) {
		callOrder = append(callOrder, "middleware")
		return next.RoundTrip(req)
	})

	next := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		callOrder = append(callOrder, "next")
		return &http.Response{StatusCode: 200}, nil
	})

	req, _ := http.NewRequest("GET", typesTestURL, nil)
	resp, err := middleware(req, next)

	if err != nil {
		t.Fatalf("Middleware failed: %v", err)
	}

	if len(callOrder) != 2 || callOrder[0] != "middleware" || callOrder[1] != "next" {
		t.Errorf("Expected call order ['middleware', 'next'], got %v", callOrder)
	}

	if resp.StatusCode != 200 {
		t.Errorf(testStatusFormat, resp.StatusCode)
	}
}

func TestGenerateRequestIDFormat(t *testing.T) {
	id := generateRequestID()
	if len(id) < 5 || !strings.HasPrefix(id, "req_") {
		t.Errorf("Expected request ID with 'req_' prefix, got %s", id)
	}
	if other := generateRequestID(); other == id {
		t.Errorf("Expected unique request IDs, got %s twice", id)
	}
}

func TestSimpleLoggerBasicCalls(t *testing.T) {
	logger := NewSimpleLogger()
	logger.Debug("dbg")
	logger.Info("info")
	logger.Warn("warn", "status", 503)
	logger.Error("err")
}
