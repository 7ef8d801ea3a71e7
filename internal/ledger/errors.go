package ledger

import (
	"errors"
	"fmt"
)

// ErrStateInconsistency marks ledger corruption. Callers must abort.
var ErrStateInconsistency = errors.New("ledger state inconsistency")

var (
	ErrDuplicatePosition = fmt.Errorf("%w: duplicate position", ErrStateInconsistency)
	ErrPositionNotOpen   = fmt.Errorf("%w: position not open", ErrStateInconsistency)
	ErrPositionNotFound  = fmt.Errorf("%w: position not found", ErrStateInconsistency)
	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrStateInconsistency)
	ErrFractionCap       = fmt.Errorf("%w: fraction cap breached", ErrStateInconsistency)
	ErrNegativeCash      = fmt.Errorf("%w: cash would go negative", ErrStateInconsistency)
	ErrInvalidQuantity   = fmt.Errorf("%w: invalid quantity", ErrStateInconsistency)
)
