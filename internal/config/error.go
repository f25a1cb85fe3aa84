package config

import "fmt"

// Error is returned by the Validate methods of the component configurations
type Error struct {
	section string
	msg     string
}

func NewError(section, format string, args ...any) *Error {
	return &Error{section: section, msg: fmt.Sprintf(format, args...)}
}

// Section returns the name of the configuration section that failed validation
func (e *Error) Section() string {
	return e.section
}

func (e *Error) Error() string {
	return e.section + ": " + e.msg
}
