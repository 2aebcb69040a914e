package decl

import "fmt"

// DeclarationError reports a declaration that cannot be bound: an
// ambiguous overload signature, an unsupported type, or a bound-name
// collision. It is fatal to the affected member only; extraction records
// it and continues with the rest of the class.
type DeclarationError struct {
	Class  string
	Member string
	Reason string
}

func (e *DeclarationError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("decl: %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("decl: %s.%s: %s", e.Class, e.Member, e.Reason)
}
