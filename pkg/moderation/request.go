package moderation

import "time"

// DeleteHistoryDays is the message-history window removed when a ban asks for it.
const DeleteHistoryDays = 7

// DefaultReason fills an empty reason.
const DefaultReason = "No reason provided"

// Invocation describes the command that started a workflow.
type Invocation struct {
	GuildID    string
	ChannelID  string
	IssuerID   string
	IssuerName string
	// Command is the message that carried the command; nil for slash commands.
	Command Message
}

// Request is a fully resolved moderation action. It is not modified after the remote call starts.
type Request struct {
	Kind          Kind
	GuildID       string
	ChannelID     string
	TargetID      string
	TargetName    string
	IssuerID      string
	IssuerName    string
	Reason        string
	Expiry        Expiry
	DeleteHistory bool
	RoleID        string
	RoleName      string
	Evidence      Message
	CreatedAt     time.Time
}

// DeleteDays converts the delete-history flag into the ban API's day window.
func (r Request) DeleteDays() int {
	if r.DeleteHistory {
		return DeleteHistoryDays
	}
	return 0
}

// DurationLabel renders the timeout span, or "" for actions without one.
func (r Request) DurationLabel() string {
	if r.Kind != KindTimeout || !r.Expiry.Valid() {
		return ""
	}
	return r.Expiry.String()
}

// Prepared is a slash-command invocation whose fields were supplied as options.
type Prepared struct {
	Kind          Kind
	TargetID      string
	TargetName    string
	Reason        string
	Duration      string
	DeleteHistory bool
	Evidence      Message
}

// draft accumulates fields while a workflow resolves them.
type draft struct {
	kind          Kind
	targetID      string
	targetName    string
	reason        string
	durationToken string
	deleteHistory bool
	evidence      Message
	interactive   bool
	replies       []Message
}
