package platformtest

import (
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// RESTError builds a discordgo REST error with the given status and API code.
func RESTError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: http.StatusText(status)},
	}
}

// Forbidden is a "Missing Permissions" REST error.
func Forbidden() error { return RESTError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions) }

// ServerError is a generic 500 REST error.
func ServerError() error { return RESTError(http.StatusInternalServerError, 0) }

var errNotFound = RESTError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)
