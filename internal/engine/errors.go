// Package engine implements the turn and movement resolution engine: roll
// generation, graph movement, the rule DSL, effect application, turn
// rotation, and the append-only event log that records all of it. Every
// operation takes an explicit *gorm.DB transaction handle and either commits
// as a whole or leaves no trace.
package engine

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected action. Every error aborts the enclosing
// transaction; there is no partial state.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPermissionDenied
	KindSequenceViolation
	KindQuotaExceeded
	KindValidation
	KindConflict
)

// Code is a machine-readable error code.
type Code string

const (
	CodeGameNotFound   Code = "GAME_NOT_FOUND"
	CodeGameFinished   Code = "GAME_FINISHED"
	CodeTurnNotFound   Code = "TURN_NOT_FOUND"
	CodePlayerNotFound Code = "PLAYER_NOT_FOUND"
	CodeTileNotFound   Code = "TILE_NOT_FOUND"
	CodeRuleNotFound   Code = "RULE_NOT_FOUND"

	CodeNotYourTurn    Code = "NOT_YOUR_TURN"
	CodePlayerInactive Code = "PLAYER_INACTIVE"

	CodeAlreadyRolled      Code = "ALREADY_ROLLED_THIS_TURN"
	CodeMustRollBeforeEnd  Code = "MUST_ROLL_BEFORE_END"
	CodeMustRollBeforeEdit Code = "MUST_ROLL_BEFORE_EDIT"
	CodeMovePendingChoice  Code = "MOVE_PENDING_CHOICE_REQUIRED"
	CodeNoPendingMove      Code = "NO_PENDING_MOVE"
	CodeNoChoiceExpected   Code = "NO_CHOICE_EXPECTED"

	CodeQuotaExceeded Code = "RULE_CHANGE_QUOTA_EXCEEDED"

	CodeBadInput          Code = "BAD_INPUT"
	CodeBadCoords         Code = "BAD_COORDS"
	CodeBadConnection     Code = "BAD_CONNECTION"
	CodeInvalidChoice     Code = "INVALID_CHOICE"
	CodeTileExists        Code = "TILE_ALREADY_EXISTS"
	CodeConnectTargetGone Code = "CONNECT_TARGET_NOT_FOUND"
	CodeCorePawnMissing   Code = "CORE_PAWN_MISSING"
	CodeNoDie             Code = "NO_DIE"
	CodeNoTileUnderPawn   Code = "NO_TILE_UNDER_PAWN"
	CodeUnknownAction     Code = "UNKNOWN_ACTION"
	CodeRuleIDRequired    Code = "RULE_ID_REQUIRED"

	CodeExclusiveConflict Code = "CONFLICT_EXCLUSIVE_EFFECT"
)

// Error is a rejected action with a taxonomy kind and a machine code.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(code Code, format string, args ...any) *Error {
	return newError(KindNotFound, code, format, args...)
}

func permissionDenied(code Code, format string, args ...any) *Error {
	return newError(KindPermissionDenied, code, format, args...)
}

func sequenceViolation(code Code, format string, args ...any) *Error {
	return newError(KindSequenceViolation, code, format, args...)
}

func quotaExceeded(format string, args ...any) *Error {
	return newError(KindQuotaExceeded, CodeQuotaExceeded, format, args...)
}

func validation(code Code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

func conflict(format string, args ...any) *Error {
	return newError(KindConflict, CodeExclusiveConflict, format, args...)
}

// KindOf extracts the taxonomy kind from an error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf extracts the machine code from an error chain, "" if untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
