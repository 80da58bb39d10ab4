package sandbox

import (
	"errors"
	"fmt"
)

// ErrSkillNotFound reports that no skill with the requested name is
// installed.
var ErrSkillNotFound = errors.New("skill not found")

// LoadError reports that a module failed to parse, validate, or link. Any
// import outside the host namespace lands here.
type LoadError struct {
	Skill string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("skill %s: load failed: %v", e.Skill, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ABIError reports a module whose entry point is missing or has the wrong
// signature.
type ABIError struct {
	Skill  string
	Reason string
}

func (e *ABIError) Error() string {
	return fmt.Sprintf("skill %s: abi violation: %s", e.Skill, e.Reason)
}

// TrapError reports a trap raised while the guest was running, such as an
// out-of-bounds memory access. The invocation's output is discarded; the
// host is unaffected.
type TrapError struct {
	Skill string
	Err   error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("skill %s: trapped: %v", e.Skill, e.Err)
}

func (e *TrapError) Unwrap() error { return e.Err }
