package util

import (
	"fmt"
	"log"
	"runtime/debug"
)

var ErrRecovered = fmt.Errorf("recovered from panic")

// Recover runs fn and converts a panic into an error wrapping ErrRecovered.
// The panic value and stack are written to the logger when one is provided.
func Recover(l *log.Logger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if l != nil {
				l.Println(r)
				l.Println(string(debug.Stack()))
			}

			err = fmt.Errorf("%w: %v", ErrRecovered, r)
		}
	}()

	return fn()
}
