package platform

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restErr(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"missing permissions code", restErr(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), ErrPermissionDenied},
		{"dms closed", restErr(http.StatusBadRequest, discordgo.ErrCodeCannotSendMessagesToThisUser), ErrPermissionDenied},
		{"bare 403", restErr(http.StatusForbidden, 0), ErrPermissionDenied},
		{"unknown message", restErr(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), ErrNotFound},
		{"bare 404", restErr(http.StatusNotFound, 0), ErrNotFound},
		{"server error", restErr(http.StatusInternalServerError, 0), ErrRequestFailed},
		{"plain error", errors.New("dial tcp: timeout"), ErrRequestFailed},
		{"wrapped sentinel", fmt.Errorf("x: %w", ErrNotFound), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify()=%v want %v", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsBothChains(t *testing.T) {
	base := restErr(http.StatusForbidden, discordgo.ErrCodeMissingPermissions)
	err := Wrap("ban", base)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission kind, got %v", err)
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		t.Fatalf("expected underlying REST error to be reachable")
	}
	if Wrap("again", err) != err {
		t.Fatalf("wrapping twice must not nest")
	}
	if Wrap("noop", nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestDiagnostic(t *testing.T) {
	if got := Diagnostic(restErr(http.StatusForbidden, 0)); got != "missing permissions" {
		t.Fatalf("unexpected diagnostic %q", got)
	}
	if got := Diagnostic(restErr(http.StatusBadGateway, 0)); got != "HTTP 502" {
		t.Fatalf("unexpected diagnostic %q", got)
	}
	if got := Diagnostic(errors.New("x")); got != "request failed" {
		t.Fatalf("unexpected diagnostic %q", got)
	}
}
