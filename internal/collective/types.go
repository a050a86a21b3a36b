// Package collective holds the owner-level umbrella profile and switch history.
package collective

import "time"

// Collective is an owner's shared profile: display tag appended to relayed
// usernames plus a bounded history of persona switches.
type Collective struct {
	OwnerID    string
	Name       string
	Bio        string
	Pronouns   string
	Tag        string
	Public     bool
	SwitchLogs []SwitchLog
}

// SwitchLog records one switch-in (or unswitch) event.
type SwitchLog struct {
	Date        time.Time `json:"date"`
	Persona     string    `json:"persona"`
	PrevPersona string    `json:"prev_persona"`
	Unswitch    bool      `json:"unswitch"`
}

// switchLogLimit bounds the retained history.
const switchLogLimit = 5

// prependSwitch inserts a new entry at the front and truncates to the limit.
func prependSwitch(logs []SwitchLog, entry SwitchLog) []SwitchLog {
	out := make([]SwitchLog, 0, switchLogLimit)
	out = append(out, entry)
	for _, l := range logs {
		if len(out) == switchLogLimit {
			break
		}
		out = append(out, l)
	}
	return out
}
