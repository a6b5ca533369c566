package binder

import (
	"errors"
	"fmt"
)

// #region taxonomy
var (
	ErrOracleTimeout           = errors.New("oracle timeout")
	ErrOracleResourceExhausted = errors.New("oracle resource exhausted")
	ErrOracleInvalidInput      = errors.New("oracle invalid input")
	ErrConfiguration           = errors.New("configuration error")
	ErrResumeConflict          = errors.New("resume conflict")
	ErrRunInterrupted          = errors.New("run interrupted")

	ErrMetricRecorded = errors.New("metric already recorded")
)

// #endregion taxonomy

// #region oracle-error
// OracleError is a typed failure from a StructurePredictor or ScoringOracle call.
// Kind is one of the ErrOracle* sentinels; errors.Is matches both Kind and Err.
type OracleError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OracleError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OracleError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether an oracle failure is transient.
// Invalid input never becomes valid by asking again.
func Retryable(err error) bool {
	return errors.Is(err, ErrOracleTimeout) || errors.Is(err, ErrOracleResourceExhausted)
}

// Configurationf wraps a formatted message in ErrConfiguration.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// #endregion oracle-error
