// Package session implements the document navigator. State is an explicit
// value: every transition takes a State and returns the updated one.
package session

import (
	"fmt"
	"slices"

	"github.com/starford/ecglabel/internal/apperr"
)

// State is one annotator's position in an ordered list of document keys.
type State struct {
	Keys      []string `json:"keys"`
	Idx       int      `json:"idx"`
	Annotator string   `json:"annotator"`
}

// New starts a session at the first document.
func New(keys []string, annotator string) State {
	return State{Keys: slices.Clone(keys), Annotator: annotator}
}

// Previous moves one document back, stopping at the first.
func Previous(s State) State {
	if len(s.Keys) == 0 {
		return s
	}
	s.Idx = max(0, s.Idx-1)
	return s
}

// Next moves one document forward, stopping at the last.
func Next(s State) State {
	if len(s.Keys) == 0 {
		return s
	}
	s.Idx = min(len(s.Keys)-1, s.Idx+1)
	return s
}

// JumpTo moves to key. An unknown key leaves the state unchanged.
func JumpTo(s State, key string) (State, error) {
	i := slices.Index(s.Keys, key)
	if i < 0 {
		return s, fmt.Errorf("session: jump to %q: %w", key, apperr.ErrNotFound)
	}
	s.Idx = i
	return s, nil
}

// Current returns the key under the cursor. It reports false for an empty
// list.
func Current(s State) (string, bool) {
	if s.Idx < 0 || s.Idx >= len(s.Keys) {
		return "", false
	}
	return s.Keys[s.Idx], true
}

// Refresh replaces the document list. The cursor follows the current key when
// it is still listed; otherwise it is clamped into the new list.
func Refresh(s State, keys []string) State {
	cur, ok := Current(s)
	s.Keys = slices.Clone(keys)
	if ok {
		if i := slices.Index(s.Keys, cur); i >= 0 {
			s.Idx = i
			return s
		}
	}
	s.Idx = max(0, min(s.Idx, len(s.Keys)-1))
	return s
}

// Position is the 1-based "File i of N" view of a state.
type Position struct {
	Number int `json:"number"`
	Total  int `json:"total"`
}

// PositionOf returns the cursor as a 1-based position. An empty list yields
// {0, 0}.
func PositionOf(s State) Position {
	if len(s.Keys) == 0 {
		return Position{}
	}
	return Position{Number: s.Idx + 1, Total: len(s.Keys)}
}

func (p Position) String() string {
	return fmt.Sprintf("File %d of %d", p.Number, p.Total)
}
