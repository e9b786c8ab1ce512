package moderation

import (
	"strings"
)

// Kind is the moderation action being requested.
type Kind string

const (
	KindBan             Kind = "ban"
	KindKick            Kind = "kick"
	KindTimeout         Kind = "timeout"
	KindTicketBlacklist Kind = "ticketblacklist"
)

// Kinds lists every supported action in command order.
var Kinds = []Kind{KindBan, KindKick, KindTimeout, KindTicketBlacklist}

// ParseKind maps a command name onto a Kind.
func ParseKind(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ban":
		return KindBan, true
	case "kick":
		return KindKick, true
	case "timeout", "mute":
		return KindTimeout, true
	case "ticketblacklist", "blacklist":
		return KindTicketBlacklist, true
	}
	return "", false
}

// Verb is the imperative used in prompts ("ban", "timeout").
func (k Kind) Verb() string {
	if k == KindTicketBlacklist {
		return "blacklist"
	}
	return string(k)
}

// Gerund is used in evidence prompts ("banning", "timing out").
func (k Kind) Gerund() string {
	switch k {
	case KindBan:
		return "banning"
	case KindKick:
		return "kicking"
	case KindTimeout:
		return "timing out"
	default:
		return "blacklisting"
	}
}

// PastTense is used in confirmations ("banned", "timed out").
func (k Kind) PastTense() string {
	switch k {
	case KindBan:
		return "banned"
	case KindKick:
		return "kicked"
	case KindTimeout:
		return "timed out"
	default:
		return "ticket blacklisted"
	}
}

// Title is the display label in audit records.
func (k Kind) Title() string {
	switch k {
	case KindBan:
		return "Ban"
	case KindKick:
		return "Kick"
	case KindTimeout:
		return "Timeout"
	default:
		return "Ticket Blacklist"
	}
}

// MentionPrefix is the literal every target token must start with.
const MentionPrefix = "<@"

// BanArgs is the single-line form of a ban.
type BanArgs struct {
	Mention       string
	DeleteHistory bool
	Reason        string
}

// KickArgs is the single-line form of a kick or ticket blacklist.
type KickArgs struct {
	Mention string
	Reason  string
}

// TimeoutArgs is the single-line form of a timeout.
type TimeoutArgs struct {
	Mention  string
	Duration string
	Reason   string
}

// splitArgs drops the command name and enforces the mention and minimum-count rules.
func splitArgs(text string, min int) ([]string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, false
	}
	rest := fields[1:]
	if len(rest) < min || !strings.HasPrefix(rest[0], MentionPrefix) {
		return nil, false
	}
	return rest, true
}

// ParseBanCommand parses "!ban <@user> <yes|no> <reason...>".
func ParseBanCommand(text string) (BanArgs, bool) {
	rest, ok := splitArgs(text, 3)
	if !ok {
		return BanArgs{}, false
	}
	return BanArgs{Mention: rest[0], DeleteHistory: ParseYesNo(rest[1]), Reason: strings.Join(rest[2:], " ")}, true
}

// ParseKickCommand parses "!kick <@user> <reason...>".
func ParseKickCommand(text string) (KickArgs, bool) {
	rest, ok := splitArgs(text, 2)
	if !ok {
		return KickArgs{}, false
	}
	return KickArgs{Mention: rest[0], Reason: strings.Join(rest[1:], " ")}, true
}

// ParseBlacklistCommand parses "!ticketblacklist <@user> <reason...>".
func ParseBlacklistCommand(text string) (KickArgs, bool) {
	return ParseKickCommand(text)
}

// ParseTimeoutCommand parses "!timeout <@user> <duration> <reason...>".
func ParseTimeoutCommand(text string) (TimeoutArgs, bool) {
	rest, ok := splitArgs(text, 3)
	if !ok {
		return TimeoutArgs{}, false
	}
	return TimeoutArgs{Mention: rest[0], Duration: rest[1], Reason: strings.Join(rest[2:], " ")}, true
}

// ParseYesNo maps {yes,y,true,1} to true; everything else, including {no,n,false,0}, to false.
func ParseYesNo(s string) bool {
	v, _ := yesNo(s)
	return v
}

// yesNo also reports whether the answer was in the vocabulary.
func yesNo(s string) (value, recognized bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true, true
	case "no", "n", "false", "0":
		return false, true
	}
	return false, false
}

// ExtractUserID returns the snowflake in a "<@123>" or "<@!123>" token, or a bare numeric ID.
func ExtractUserID(token string) string {
	t := strings.TrimSpace(token)
	if strings.HasPrefix(t, "<@") && strings.HasSuffix(t, ">") {
		t = strings.TrimPrefix(strings.TrimSuffix(t[2:], ">"), "!")
	}
	if t == "" {
		return ""
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return t
}

// Mention renders a user mention.
func Mention(userID string) string { return "<@" + userID + ">" }
