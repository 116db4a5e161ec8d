// Package validation provides common validation utilities for configuration
// parameters across the crontimer library.
//
// The helpers return *errors.ValidationError values so that constructors and
// the daemon config loader report rejected inputs with the same shape.
package validation
