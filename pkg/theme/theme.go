// Package theme holds the embed color palette. Action colors fall back to the
// core colors when a palette leaves them unset.
package theme

import (
	"fmt"
	"maps"
	"sync"
)

// Color is the int value used by discordgo.MessageEmbed.Color.
type Color = int

// Role names a use of color in embeds.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleInfo      Role = "info"
	RoleSuccess   Role = "success"
	RoleWarning   Role = "warning"
	RoleError     Role = "error"
	RoleMuted     Role = "muted"
	RoleBan       Role = "ban"
	RoleKick      Role = "kick"
	RoleTimeout   Role = "timeout"
	RoleBlacklist Role = "blacklist"
)

// inherits maps action roles to the core role they fall back to.
var inherits = map[Role]Role{
	RoleBan:       RoleError,
	RoleKick:      RoleWarning,
	RoleTimeout:   RoleWarning,
	RoleBlacklist: RoleMuted,
}

var base = map[Role]Color{
	RolePrimary: 0x5865F2,
	RoleInfo:    0x3B82F6,
	RoleSuccess: 0x57F287,
	RoleWarning: 0xF59E0B,
	RoleError:   0xED4245,
	RoleMuted:   0x99AAB5,
	RoleBan:     0xED4245,
	RoleKick:    0xE67E22,
	RoleTimeout: 0xFEE75C,
}

// Palette is a named set of role colors. Missing roles resolve through
// inheritance and then the default palette.
type Palette struct {
	Name   string
	Colors map[Role]Color
}

// Color resolves role for p.
func (p Palette) Color(role Role) Color {
	for r := role; r != ""; r = inherits[r] {
		if c, ok := p.Colors[r]; ok && c != 0 {
			return c
		}
	}
	for r := role; r != ""; r = inherits[r] {
		if c, ok := base[r]; ok {
			return c
		}
	}
	return base[RoleMuted]
}

var (
	mu       sync.RWMutex
	registry = map[string]Palette{}
	current  = Palette{Name: "default", Colors: base}
)

func init() {
	MustRegister(Palette{Name: "classic", Colors: map[Role]Color{
		RoleSuccess: 0x2ECC71,
		RoleError:   0xE74C3C,
		RoleKick:    0xE67E22,
		RoleTimeout: 0xF1C40F,
		RoleMuted:   0x95A5A6,
	}})
	MustRegister(Palette{Name: "mono", Colors: map[Role]Color{
		RolePrimary: 0xDCDDDE,
		RoleInfo:    0xB9BBBE,
		RoleSuccess: 0xDCDDDE,
		RoleWarning: 0x8E9297,
		RoleError:   0x4F545C,
		RoleMuted:   0x72767D,
	}})
}

// Register adds a palette. Names must be non-empty and unique.
func Register(p Palette) error {
	if p.Name == "" || p.Name == "default" {
		return fmt.Errorf("theme: invalid palette name %q", p.Name)
	}
	p.Colors = maps.Clone(p.Colors)

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[p.Name]; exists {
		return fmt.Errorf("theme: palette %q already registered", p.Name)
	}
	registry[p.Name] = p
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(p Palette) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// SetCurrent switches the active palette by name. "" and "default" reset it.
func SetCurrent(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || name == "default" {
		current = Palette{Name: "default", Colors: base}
		return nil
	}
	p, ok := registry[name]
	if !ok {
		return fmt.Errorf("theme: palette %q not found", name)
	}
	current = p
	return nil
}

// Of returns the active palette's color for role.
func Of(role Role) Color {
	mu.RLock()
	p := current
	mu.RUnlock()
	return p.Color(role)
}

func Primary() Color   { return Of(RolePrimary) }
func Info() Color      { return Of(RoleInfo) }
func Success() Color   { return Of(RoleSuccess) }
func Warning() Color   { return Of(RoleWarning) }
func Error() Color     { return Of(RoleError) }
func Muted() Color     { return Of(RoleMuted) }
func Ban() Color       { return Of(RoleBan) }
func Kick() Color      { return Of(RoleKick) }
func Timeout() Color   { return Of(RoleTimeout) }
func Blacklist() Color { return Of(RoleBlacklist) }
