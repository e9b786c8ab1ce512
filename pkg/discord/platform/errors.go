package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrPermissionDenied covers missing bot permissions, role hierarchy and closed DMs.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound covers unknown channels, members, users, roles and messages.
	ErrNotFound = errors.New("not found")
	// ErrRequestFailed covers every other failure, rate limiting included.
	ErrRequestFailed = errors.New("request failed")
)

// Error is a classified platform failure.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Wrap classifies err and attaches op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	return &Error{Op: op, Kind: Classify(err), Err: err}
}

// Classify maps a discordgo error onto one of the sentinel kinds.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied):
		return ErrPermissionDenied
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess,
				discordgo.ErrCodeCannotSendMessagesToThisUser:
				return ErrPermissionDenied
			case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownMessage,
				discordgo.ErrCodeUnknownUser, discordgo.ErrCodeUnknownRole, discordgo.ErrCodeUnknownGuild:
				return ErrNotFound
			}
		}
		if rest.Response != nil {
			switch rest.Response.StatusCode {
			case http.StatusForbidden:
				return ErrPermissionDenied
			case http.StatusNotFound:
				return ErrNotFound
			}
		}
	}
	return ErrRequestFailed
}

// IsPermissionDenied reports whether err is classified as a permission failure.
func IsPermissionDenied(err error) bool { return errors.Is(Classify(err), ErrPermissionDenied) }

// IsNotFound reports whether err is classified as a missing resource.
func IsNotFound(err error) bool { return errors.Is(Classify(err), ErrNotFound) }

// Diagnostic returns a short, user-safe description of err.
func Diagnostic(err error) string {
	switch Classify(err) {
	case ErrPermissionDenied:
		return "missing permissions"
	case ErrNotFound:
		return "not found"
	case nil:
		return ""
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return fmt.Sprintf("HTTP %d", rest.Response.StatusCode)
	}
	return "request failed"
}
