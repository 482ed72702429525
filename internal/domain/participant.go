// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxIdentityLen = 36

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

type Identity string

// ValidateIdentity checks a display name before it is used as a room identity.
func ValidateIdentity(identity string) error {
	if len(identity) == 0 {
		return ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}

// Participant is one row of the roster, derived entirely from transport events.
type Participant struct {
	Identity   Identity `json:"identity"`
	IsLocal    bool     `json:"is_local"`
	IsSpeaking bool     `json:"is_speaking"`
	IsMuted    bool     `json:"is_muted"`
}

// RosterView is what roster subscribers receive: the transport-confirmed
// participant list plus the informational presence count. OnlineCount may
// disagree with len(Participants); the participant list always wins.
type RosterView struct {
	Participants []Participant `json:"participants"`
	OnlineCount  int           `json:"online_count"`
}
