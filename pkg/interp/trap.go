package interp

import "errors"

// Runtime trap kinds. These are the only conditions that surface as a Throw
// outcome; every other failure is an interpreter bug and unwinds Execute as
// a plain error.
const (
	TrapDivisionByZero      = "Division by zero"
	TrapModuloByZero        = "Modulo by zero"
	TrapNegativeArrayLength = "Negative array length"
	TrapIndexOutOfBounds    = "Array index out of bounds"
	TrapInvalidArrayRef     = "Invalid array reference"
	TrapLoadBaseNotRef      = "Load base must be a reference"
	TrapStoreBaseNotRef     = "Store base must be a reference"
)

// Trap is the runtime-trap error channel: a condition the interpreted
// program itself provokes (divide by zero, bad index, bad base). Traps are
// converted to Outcome Throw at the Execute boundary; they are never
// swallowed elsewhere.
type Trap struct {
	Kind string
}

func (t *Trap) Error() string { return t.Kind }

func newTrap(kind string) error {
	return &Trap{Kind: kind}
}

// AsTrap unwraps err to a *Trap if it is one.
func AsTrap(err error) (*Trap, bool) {
	var t *Trap
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}
