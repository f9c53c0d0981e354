package domain

import (
	"errors"
	"fmt"
)

// ErrRoomNotFound is returned when no game is stored under a room id.
var ErrRoomNotFound = errors.New("room not found")

// Error classes. Every rejection wraps one of these so callers can map it
// with errors.Is without knowing the specific cause.
var (
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidSettings = errors.New("invalid settings")
)

// Invalid action errors
var (
	ErrWrongPhase         = invalidAction("action not allowed in the current phase")
	ErrNotAdmin           = invalidAction("only the room admin can perform this action")
	ErrPlayerNotFound     = invalidAction("player not found")
	ErrPlayerDead         = invalidAction("player is dead")
	ErrCannotActAtNight   = invalidAction("role cannot act at night")
	ErrCannotVote         = invalidAction("role cannot vote")
	ErrUnknownActionType  = invalidAction("unknown action type for role")
	ErrMissingTarget      = invalidAction("action requires a target")
	ErrInvalidTarget      = invalidAction("invalid target")
	ErrTargetDead         = invalidAction("target is already dead")
	ErrResourceConsumed   = invalidAction("resource already used")
	ErrRepeatProtection   = invalidAction("cannot protect the same player twice in a row")
	ErrCupidNotFirstNight = invalidAction("cupid can only link on the first night")
	ErrLoversAlreadySet   = invalidAction("lovers are already linked")
	ErrAlreadyChecked     = invalidAction("a player was already inspected tonight")
	ErrNicknameTaken      = invalidAction("nickname already taken")
	ErrNicknameInvalid    = invalidAction("nickname must be between 1 and 32 characters")
	ErrKickSelf           = invalidAction("cannot kick yourself")
	ErrGameInProgress     = invalidAction("cannot do this while the game is in progress")
	ErrGameOver           = invalidAction("game is already over")
)

// Structural errors
var (
	ErrRoleCountMismatch = invalidSettings("role count must match player count")
	ErrUnknownRole       = invalidSettings("unknown role in distribution")
	ErrNegativeCount     = invalidSettings("role counts must be non-negative")
	ErrNegativeDuration  = invalidSettings("phase duration must be non-negative")
	ErrNoPlayers         = invalidSettings("cannot start a game without players")
)

// ruleError keeps the message readable while still matching its class.
type ruleError struct {
	msg   string
	class error
}

func (e *ruleError) Error() string { return e.msg }
func (e *ruleError) Unwrap() error { return e.class }

func invalidAction(msg string) error {
	return &ruleError{msg: msg, class: ErrInvalidAction}
}

func invalidSettings(msg string) error {
	return &ruleError{msg: msg, class: ErrInvalidSettings}
}

// Invalidf builds an ad-hoc invalid action error.
func Invalidf(format string, args ...any) error {
	return invalidAction(fmt.Sprintf(format, args...))
}
