package trilist

import "errors"

// Sentinel errors surfaced by the builder and engine. Adapter failures are
// not sentinels; they propagate wrapped with operation context and can be
// unwrapped to the backend's own error.
var (
	// ErrConfigInvalid is returned by the builder: by its setters for
	// incomplete arguments, negative rank numbers and duplicate rank
	// numbers or names, and by Build when required fields are missing or
	// the rank numbering has a gap.
	ErrConfigInvalid = errors.New("list configuration invalid")

	// ErrAlreadyConfigured is returned when a builder field is set twice,
	// or when Build is called on a builder that already produced a list.
	ErrAlreadyConfigured = errors.New("already configured")

	// ErrUnknownAggregate is returned by reads naming an unregistered
	// aggregate.
	ErrUnknownAggregate = errors.New("unknown aggregate")

	// ErrUnknownRank is returned by reads naming an unregistered rank.
	ErrUnknownRank = errors.New("unknown rank")

	// ErrTypeMismatch is returned when a stored value does not match the
	// Go type the aggregate or key was registered with.
	ErrTypeMismatch = errors.New("value type mismatch")

	// ErrInvalidRange is returned by range reads whose end position maps
	// below their start position.
	ErrInvalidRange = errors.New("range end before range start")

	// ErrDeleted is returned by every operation after
	// DeleteAllTablesAndData.
	ErrDeleted = errors.New("list deleted")
)
