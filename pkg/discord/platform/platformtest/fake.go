// Package platformtest provides a recording in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Call records one mutating invocation.
type Call struct {
	Method    string
	ChannelID string
	GuildID   string
	UserID    string
	RoleID    string
	Reason    string
	Content   string
	Days      int
	Until     time.Time
	Send      *discordgo.MessageSend
}

// Fake is a concurrency-safe Platform double. Set the *Err fields to inject failures.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	seq   int

	BotID      string
	GuildNames map[string]string
	Owners     map[string]string
	Channels   map[string]*discordgo.Channel
	MembersBy  map[string]*discordgo.Member // key: guildID/userID
	Roles      map[string][]*discordgo.Role // key: guildID

	SendErr       error
	SendErrTimes  int // when >0, SendErr is returned only for the first N sends
	DeleteErr     error
	BanErr        error
	KickErr       error
	TimeoutErr    error
	AddRoleErr    error
	RemoveRoleErr error
	DMErr         error
	DMErrTimes    int
	ChannelErr    error
	ReactionErr   error

	sendFailures int
	dmFailures   int
	OnSend       func(channelID string, msg *discordgo.MessageSend)
	OnText       func(channelID, content string)
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		BotID:      "bot",
		GuildNames: map[string]string{},
		Owners:     map[string]string{},
		Channels:   map[string]*discordgo.Channel{},
		MembersBy:  map[string]*discordgo.Member{},
		Roles:      map[string][]*discordgo.Role{},
	}
}

// AddMember registers a member holding the given role IDs.
func (f *Fake) AddMember(guildID, userID string, roleIDs ...string) *discordgo.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID, Username: "user" + userID}, Roles: append([]string(nil), roleIDs...)}
	f.MembersBy[guildID+"/"+userID] = m
	return m
}

// AddRoleDef registers a guild role.
func (f *Fake) AddRoleDef(guildID, roleID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Roles[guildID] = append(f.Roles[guildID], &discordgo.Role{ID: roleID, Name: name})
}

// AddTextChannel registers a guild text channel.
func (f *Fake) AddTextChannel(guildID, channelID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels[channelID] = &discordgo.Channel{ID: channelID, GuildID: guildID, Name: name, Type: discordgo.ChannelTypeGuildText}
}

// Calls returns a snapshot of recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns recorded calls with the given method name.
func (f *Fake) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the content of every SendText call in order.
func (f *Fake) Texts() []string {
	var out []string
	for _, c := range f.CallsTo("SendText") {
		out = append(out, c.Content)
	}
	return out
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *Fake) nextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return "m" + strconv.Itoa(f.seq)
}

func (f *Fake) sendFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr == nil {
		return nil
	}
	if f.SendErrTimes > 0 {
		if f.sendFailures >= f.SendErrTimes {
			return nil
		}
		f.sendFailures++
	}
	return f.SendErr
}

func (f *Fake) SendText(_ context.Context, channelID, content string) (*discordgo.Message, error) {
	f.record(Call{Method: "SendText", ChannelID: channelID, Content: content})
	if f.OnText != nil {
		f.OnText(channelID, content)
	}
	if err := f.sendFailure(); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: f.nextID(), ChannelID: channelID, Content: content}, nil
}

func (f *Fake) SendComplex(_ context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	f.record(Call{Method: "SendComplex", ChannelID: channelID, Content: msg.Content, Send: msg})
	if f.OnSend != nil {
		f.OnSend(channelID, msg)
	}
	if err := f.sendFailure(); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: f.nextID(), ChannelID: channelID, Content: msg.Content}, nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.record(Call{Method: "DeleteMessage", ChannelID: channelID, Content: messageID})
	return f.DeleteErr
}

func (f *Fake) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	f.record(Call{Method: "AddReaction", ChannelID: channelID, Content: emoji})
	return f.ReactionErr
}

func (f *Fake) Ban(_ context.Context, guildID, userID, reason string, days int) error {
	f.record(Call{Method: "Ban", GuildID: guildID, UserID: userID, Reason: reason, Days: days})
	return f.BanErr
}

func (f *Fake) Kick(_ context.Context, guildID, userID, reason string) error {
	f.record(Call{Method: "Kick", GuildID: guildID, UserID: userID, Reason: reason})
	return f.KickErr
}

func (f *Fake) Timeout(_ context.Context, guildID, userID string, until time.Time, reason string) error {
	f.record(Call{Method: "Timeout", GuildID: guildID, UserID: userID, Reason: reason, Until: until})
	return f.TimeoutErr
}

func (f *Fake) AddRole(_ context.Context, guildID, userID, roleID, reason string) error {
	f.record(Call{Method: "AddRole", GuildID: guildID, UserID: userID, RoleID: roleID, Reason: reason})
	if f.AddRoleErr != nil {
		return f.AddRoleErr
	}
	f.mu.Lock()
	if m, ok := f.MembersBy[guildID+"/"+userID]; ok {
		m.Roles = append(m.Roles, roleID)
	}
	f.mu.Unlock()
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, guildID, userID, roleID, reason string) error {
	f.record(Call{Method: "RemoveRole", GuildID: guildID, UserID: userID, RoleID: roleID, Reason: reason})
	if f.RemoveRoleErr != nil {
		return f.RemoveRoleErr
	}
	f.mu.Lock()
	if m, ok := f.MembersBy[guildID+"/"+userID]; ok {
		kept := m.Roles[:0]
		for _, r := range m.Roles {
			if r != roleID {
				kept = append(kept, r)
			}
		}
		m.Roles = kept
	}
	f.mu.Unlock()
	return nil
}

func (f *Fake) DirectMessage(_ context.Context, userID string, msg *discordgo.MessageSend) error {
	f.record(Call{Method: "DirectMessage", UserID: userID, Send: msg})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DMErr == nil {
		return nil
	}
	if f.DMErrTimes > 0 {
		if f.dmFailures >= f.DMErrTimes {
			return nil
		}
		f.dmFailures++
	}
	return f.DMErr
}

func (f *Fake) Channel(_ context.Context, channelID string) (*discordgo.Channel, error) {
	if f.ChannelErr != nil {
		return nil, f.ChannelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, errNotFound)
	}
	return ch, nil
}

func (f *Fake) GuildName(_ context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.GuildNames[guildID]; ok {
		return n, nil
	}
	return "Test Guild", nil
}

func (f *Fake) GuildOwnerID(_ context.Context, guildID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Owners[guildID], nil
}

func (f *Fake) Member(_ context.Context, guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.MembersBy[guildID+"/"+userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, errNotFound)
	}
	cp := *m
	cp.Roles = append([]string(nil), m.Roles...)
	return &cp, nil
}

func (f *Fake) Members(_ context.Context, guildID, after string, limit int) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*discordgo.Member
	for key, m := range f.MembersBy {
		if len(key) > len(guildID) && key[:len(guildID)+1] == guildID+"/" {
			all = append(all, m)
		}
	}
	sortMembers(all)
	var out []*discordgo.Member
	for _, m := range all {
		if after != "" && m.User.ID <= after {
			continue
		}
		cp := *m
		cp.Roles = append([]string(nil), m.Roles...)
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) GuildRoles(_ context.Context, guildID string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Role(nil), f.Roles[guildID]...), nil
}

func (f *Fake) BotUserID() string { return f.BotID }

func sortMembers(ms []*discordgo.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].User.ID < ms[j].User.ID })
}
