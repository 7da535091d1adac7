package router

import (
	"fmt"
	"testing"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "step failed" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{codedErr{}, "STEP_FAILED"},
		{fmt.Errorf("wrapped: %w", codedErr{}), "STEP_FAILED"},
		{&plainErr{}, "PLAINERR"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.want {
			t.Fatalf("errorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestHandlerName(t *testing.T) {
	cases := map[string]string{
		" /Start ":     "start",
		"Главное меню": "главное_меню",
		"":             "unknown",
		"/":            "unknown",
	}
	for in, want := range cases {
		if got := handlerName(in); got != want {
			t.Fatalf("handlerName(%q) = %q, want %q", in, got, want)
		}
	}
}
