package assert

// Violation is the panic value raised by a failed assertion. It marks a
// broken caller contract, never a recoverable condition.
type Violation struct {
	Msg string
}

func (v *Violation) Error() string {
	return "assertion failed: " + v.Msg
}
