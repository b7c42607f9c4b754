package welcome

const (
	DefaultJoinBody  = "Welcome to {server}, {mention}!"
	DefaultLeaveBody = "{member} has left {server}."

	DefaultJoinTitle  = "Welcome"
	DefaultLeaveTitle = "Goodbye"
)

func DefaultBody(kind Kind) string {
	if kind == KindLeave {
		return DefaultLeaveBody
	}
	return DefaultJoinBody
}

func DefaultTitle(kind Kind) string {
	if kind == KindLeave {
		return DefaultLeaveTitle
	}
	return DefaultJoinTitle
}

// Choose picks one template body uniformly at random, falling back to
// the built-in default when the list is empty. intn must return a value
// in [0, n) for n > 0; injecting it keeps selection testable.
func Choose(kind Kind, templates []Template, intn func(n int) int) string {
	if len(templates) == 0 {
		return DefaultBody(kind)
	}
	return templates[intn(len(templates))].Body
}
