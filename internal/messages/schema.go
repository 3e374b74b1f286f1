// Package messages is the single source of truth for the shell's messaging
// contracts: type tags, typed payload structs, and validation.
//
// Two categories flow over the bus:
//
//   - Commands: requests for something to happen (e.g. StatePatchCommand)
//   - Events: notifications that something happened (e.g. PanelOpenedEvent)
//
// Type tags are dotted, lowercase, and stable; they are the bus dispatch key.
package messages

import (
	"fmt"
	"time"
)

// Message is any typed payload with a bus type tag.
type Message interface {
	MessageType() string
	Validate() error
}

// Command requests something to happen.
type Command interface {
	Message
	IsCommand()
}

// Event reports something that happened.
type Event interface {
	Message
	IsEvent()
	Timestamp() time.Time
}

// Type tag constants.
const (
	PanelOpenedType  = "panel.opened"
	PanelClosedType  = "panel.closed"
	ThemeChangedType = "theme.changed"
	StatePatchType   = "state.patch"
	StateChangedType = "state.changed"
	PingType         = "shell.ping"
)

// =============================================================================
// PANEL LIFECYCLE - EVENTS
// =============================================================================

// PanelOpenedEvent announces a newly hosted panel and its bus address.
type PanelOpenedEvent struct {
	Address  string    `json:"address"`
	OpenedAt time.Time `json:"opened_at"`
}

func (e PanelOpenedEvent) MessageType() string  { return PanelOpenedType }
func (e PanelOpenedEvent) IsEvent()             {}
func (e PanelOpenedEvent) Timestamp() time.Time { return e.OpenedAt }
func (e PanelOpenedEvent) Validate() error {
	if e.Address == "" {
		return fmt.Errorf("%s: address is required", PanelOpenedType)
	}
	return nil
}

// PanelClosedEvent announces that a panel's bus left the channel.
type PanelClosedEvent struct {
	Address  string    `json:"address"`
	ClosedAt time.Time `json:"closed_at"`
}

func (e PanelClosedEvent) MessageType() string  { return PanelClosedType }
func (e PanelClosedEvent) IsEvent()             {}
func (e PanelClosedEvent) Timestamp() time.Time { return e.ClosedAt }
func (e PanelClosedEvent) Validate() error {
	if e.Address == "" {
		return fmt.Errorf("%s: address is required", PanelClosedType)
	}
	return nil
}

// ThemeChangedEvent broadcasts the shell theme so every panel restyles.
type ThemeChangedEvent struct {
	Theme     string    `json:"theme"`
	ChangedAt time.Time `json:"changed_at"`
}

func (e ThemeChangedEvent) MessageType() string  { return ThemeChangedType }
func (e ThemeChangedEvent) IsEvent()             {}
func (e ThemeChangedEvent) Timestamp() time.Time { return e.ChangedAt }
func (e ThemeChangedEvent) Validate() error {
	if e.Theme == "" {
		return fmt.Errorf("%s: theme is required", ThemeChangedType)
	}
	return nil
}

// =============================================================================
// SHARED STATE DOMAIN
// =============================================================================

// StatePatchCommand asks the shell state store to apply an RFC 7386 merge
// patch to the shared document.
type StatePatchCommand struct {
	Patch []byte `json:"patch"`
}

func (c StatePatchCommand) MessageType() string { return StatePatchType }
func (c StatePatchCommand) IsCommand()          {}
func (c StatePatchCommand) Validate() error {
	if len(c.Patch) == 0 {
		return fmt.Errorf("%s: patch is required", StatePatchType)
	}
	return nil
}

// StateChangedEvent carries the merged shared-state document after a patch.
type StateChangedEvent struct {
	State     []byte    `json:"state"`
	Revision  uint64    `json:"revision"`
	ChangedAt time.Time `json:"changed_at"`
}

func (e StateChangedEvent) MessageType() string  { return StateChangedType }
func (e StateChangedEvent) IsEvent()             {}
func (e StateChangedEvent) Timestamp() time.Time { return e.ChangedAt }
func (e StateChangedEvent) Validate() error      { return nil }

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// PingCommand is a round-trip probe; reply via Bus.Reply with PingReply.
type PingCommand struct {
	Echo string `json:"echo,omitempty"`
}

func (c PingCommand) MessageType() string { return PingType }
func (c PingCommand) IsCommand()          {}
func (c PingCommand) Validate() error     { return nil }

// PingReply answers PingCommand.
type PingReply struct {
	Echo    string `json:"echo,omitempty"`
	Address string `json:"address"` // responder's bus address
}
