// Package trigger owns the per-guild trigger table and the phrase matcher.
//
// The Store is the source of truth for the running session. Persistence is
// write-through via an injected Persister: a failed write is reported (and
// logged) but never rolls back the in-memory mutation.
package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action selects what happens when a trigger phrase matches.
type Action string

const (
	ActionReaction Action = "reaction"
	ActionReply    Action = "reply"
)

var (
	ErrAlreadyExists = errors.New("trigger already exists")
	ErrNotFound      = errors.New("trigger not found")
	ErrLimitReached  = errors.New("trigger limit reached")
)

// PersistError wraps a storage write failure. The in-memory mutation has
// already been applied when a method returns this; callers should warn the
// user but treat the operation as done for the session.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// Trigger is one stored (phrase -> action) pair.
//
// Phrase is stored normalized (lowercase, trimmed); matching is a
// case-insensitive substring scan of incoming message content.
type Trigger struct {
	Phrase    string    `json:"phrase"`
	Action    Action    `json:"action"`
	Emoji     string    `json:"emoji,omitempty"`
	Response  string    `json:"response,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the action/payload pairing.
func (t Trigger) Validate() error {
	if Normalize(t.Phrase) == "" {
		return errors.New("phrase must not be empty")
	}
	switch t.Action {
	case ActionReaction:
		if strings.TrimSpace(t.Emoji) == "" {
			return errors.New("reaction trigger requires an emoji")
		}
	case ActionReply:
		if strings.TrimSpace(t.Response) == "" {
			return errors.New("reply trigger requires response text")
		}
	default:
		return fmt.Errorf("unknown action %q", string(t.Action))
	}
	return nil
}

// Normalize is the canonical form of a phrase: the case-insensitive match key.
func Normalize(phrase string) string {
	return strings.ToLower(strings.TrimSpace(phrase))
}
