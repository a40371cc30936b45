package mocks

import "errors"

// ErrInjected is a static error tests can hand to the Fn hooks.
var ErrInjected = errors.New("injected failure")
