package council

import (
	"errors"
	"fmt"

	"github.com/dshills/tribunal/internal/providers"
)

// Configuration errors reported by New. Test with errors.Is.
var (
	ErrNoJudges        = errors.New("council needs at least one judge")
	ErrMissingJudgeID  = errors.New("judge id is required")
	ErrDuplicateJudge  = errors.New("duplicate judge id")
	ErrInvalidWeight   = errors.New("judge weight must be a positive finite number")
	ErrInvalidTimeout  = errors.New("judge timeout must be positive")
	ErrUnknownProvider = providers.ErrUnknownProvider
)

// ConfigError describes why a council could not be built. Index is the
// judge's position in the configuration, or -1 for council-wide problems.
type ConfigError struct {
	Index   int
	JudgeID string
	Err     error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Index < 0:
		return "council config: " + e.Err.Error()
	case e.JudgeID == "":
		return fmt.Sprintf("council config: judge #%d: %v", e.Index+1, e.Err)
	default:
		return fmt.Sprintf("council config: judge %q: %v", e.JudgeID, e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }
