package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
)

// OptionExtractor reads typed values from interaction options.
type OptionExtractor struct {
	options  []*discordgo.ApplicationCommandInteractionDataOption
	resolved *discordgo.ApplicationCommandInteractionDataResolved
}

// NewOptionExtractor wraps the options of an interaction. resolved may be nil.
func NewOptionExtractor(options []*discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved) *OptionExtractor {
	return &OptionExtractor{options: options, resolved: resolved}
}

func (e *OptionExtractor) find(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range e.options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// String returns a string option, trimmed.
func (e *OptionExtractor) String(name string) string {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

// Bool returns a boolean option and whether it was supplied.
func (e *OptionExtractor) Bool(name string) (bool, bool) {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionBoolean {
		return opt.BoolValue(), true
	}
	return false, false
}

// Int returns an integer option.
func (e *OptionExtractor) Int(name string) int64 {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return opt.IntValue()
	}
	return 0
}

// UserID returns the snowflake of a user option.
func (e *OptionExtractor) UserID(name string) string {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionUser {
		if id, ok := opt.Value.(string); ok {
			return id
		}
	}
	return ""
}

// User returns the resolved user of a user option, if the payload carried it.
func (e *OptionExtractor) User(name string) *discordgo.User {
	id := e.UserID(name)
	if id == "" || e.resolved == nil {
		return nil
	}
	return e.resolved.Users[id]
}

// RoleID returns the snowflake of a role option.
func (e *OptionExtractor) RoleID(name string) string {
	if opt := e.find(name); opt != nil && opt.Type == discordgo.ApplicationCommandOptionRole {
		if id, ok := opt.Value.(string); ok {
			return id
		}
	}
	return ""
}

// Attachment returns the resolved attachment of an attachment option.
func (e *OptionExtractor) Attachment(name string) *discordgo.MessageAttachment {
	opt := e.find(name)
	if opt == nil || opt.Type != discordgo.ApplicationCommandOptionAttachment || e.resolved == nil {
		return nil
	}
	id, ok := opt.Value.(string)
	if !ok {
		return nil
	}
	return e.resolved.Attachments[id]
}

// HasOption reports whether name was supplied.
func (e *OptionExtractor) HasOption(name string) bool {
	return e.find(name) != nil
}

// ownerResolver is implemented by directories that know guild owners.
type ownerResolver interface {
	GuildOwnerID(ctx context.Context, guildID string) (string, error)
}

// PermissionChecker decides who may run privileged commands: the guild owner
// and members holding one of the guild's moderator role names.
type PermissionChecker struct {
	dir    platform.Directory
	config *files.ConfigManager
}

func NewPermissionChecker(dir platform.Directory, config *files.ConfigManager) *PermissionChecker {
	return &PermissionChecker{dir: dir, config: config}
}

// HasPermission checks whether the user has permission to use commands
func (pc *PermissionChecker) HasPermission(ctx context.Context, guildID, userID string) bool {
	if pc == nil || guildID == "" || pc.dir == nil {
		return false
	}
	if pc.IsOwner(guildID, userID) {
		return true
	}

	allowed := files.DefaultAllowedRoles
	if pc.config != nil {
		if gc := pc.config.GuildConfig(guildID); gc != nil {
			allowed = gc.ModeratorRoles()
		}
	}
	held, err := platform.MemberRoleNames(ctx, pc.dir, guildID, userID)
	if err != nil {
		return false
	}
	return platform.HasAnyRole(held, allowed)
}

// IsOwner checks whether the user is the server owner
func (pc *PermissionChecker) IsOwner(guildID, userID string) bool {
	if pc == nil || guildID == "" || userID == "" {
		return false
	}
	or, ok := pc.dir.(ownerResolver)
	if !ok {
		return false
	}
	ownerID, err := or.GuildOwnerID(context.Background(), guildID)
	return err == nil && ownerID == userID
}

// CompareCommands compares two commands to check if they are semantically equal
func CompareCommands(a, b *discordgo.ApplicationCommand) bool {
	type shape struct {
		Name        string                                `json:"name"`
		Description string                                `json:"description"`
		Options     []*discordgo.ApplicationCommandOption `json:"options"`
	}
	ba, _ := json.Marshal(shape{a.Name, a.Description, a.Options})
	bb, _ := json.Marshal(shape{b.Name, b.Description, b.Options})
	return string(ba) == string(bb)
}

// ValidationError reports a missing or malformed slash option.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StringRequired returns a string option or a ValidationError when it is blank.
func (e *OptionExtractor) StringRequired(name string) (string, error) {
	v := e.String(name)
	if v == "" {
		return "", &ValidationError{Field: name, Message: "is required"}
	}
	return v, nil
}
