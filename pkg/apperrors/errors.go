package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptySchema        = errors.New("schema contains no classifiable columns")
	ErrUnknownRegulation  = errors.New("unknown regulation")
	ErrNoPatternsLoaded   = errors.New("pattern library is empty")
	ErrSessionIncomplete  = errors.New("classification session ended before all fields were processed")
	ErrEscalationDisabled = errors.New("ai escalation is disabled")
)
