package emrcore_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/MaheshReddy-s/emrcore"
)

func ExampleClient_Get() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"id":"p1","name":"Ada"}}`)
	}))
	defer server.Close()

	client := emrcore.New(emrcore.WithBaseURL(server.URL))
	defer client.Close()
	client.SetToken("token")

	type patient struct {
		Name string `json:"name"`
	}
	p, err := emrcore.Decode[patient](client.Get(context.Background(), "/patients/p1"))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(p.Name)
	// Output: Ada
}

func ExampleNormalizeError() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"message":"Validation failed","errors":{"dob":"must be in the past"}}`)
	}))
	defer server.Close()

	client := emrcore.New(emrcore.WithBaseURL(server.URL))
	defer client.Close()

	_, err := client.Post(context.Background(), "/patients", map[string]string{"dob": "2999-01-01"})

	apiErr := emrcore.NormalizeError(err)
	fmt.Println(apiErr.Type, apiErr.Status, apiErr.Message)
	fmt.Println(apiErr.FieldErrors["dob"][0])
	fmt.Println(errors.Is(err, emrcore.ErrUnauthorized))
	// Output:
	// Client 422 Validation failed
	// must be in the past
	// false
}
