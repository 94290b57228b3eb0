package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrInvalidInput, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("parsing limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{"index not open", ErrIndexNotOpen, http.StatusServiceUnavailable},
		{"corrupt block", fmt.Errorf("reading: %w", ErrCorruptBlock), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusCode(tc.err); got != tc.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrTimeout, http.StatusGatewayTimeout, "after %dms", 50)
	if !errors.Is(err, ErrTimeout) {
		t.Error("AppError should unwrap to its sentinel")
	}
	if err.Error() != "operation timed out: after 50ms" {
		t.Errorf("Error() = %q", err.Error())
	}
}
