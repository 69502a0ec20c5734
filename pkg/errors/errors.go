// Unified error handling for FileButtons
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// GPIO errors
	ErrGPIODriver ErrorCode = "GPIO_DRIVER"
	ErrGPIOClaim  ErrorCode = "GPIO_CLAIM"
	ErrGPIORead   ErrorCode = "GPIO_READ"

	// Listing errors
	ErrListing          ErrorCode = "LISTING"
	ErrListingEmpty     ErrorCode = "LISTING_EMPTY"
	ErrListingNotListed ErrorCode = "LISTING_NOT_LISTED"

	// Printer errors
	ErrPrinterUnreachable ErrorCode = "PRINTER_UNREACHABLE"
	ErrPrinterCommand     ErrorCode = "PRINTER_COMMAND"
	ErrPrinterUnsupported ErrorCode = "PRINTER_UNSUPPORTED"

	// Input errors
	ErrUnknownGesture ErrorCode = "UNKNOWN_GESTURE"
)

// HostError is the unified error type for the controller
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section or component
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Option
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Code, where, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config decoding failure
func ConfigTypeError(section string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("section '%s' could not be decoded", section)).
		SetSection(section)
}

// GPIO errors

// GPIODriverError creates an error for an unusable GPIO driver
func GPIODriverError(driver string, err error) *HostError {
	return Wrap(err, ErrGPIODriver, fmt.Sprintf("gpio driver '%s' unavailable", driver)).
		SetSection(driver)
}

// GPIOClaimError creates an error for a pin that could not be claimed
func GPIOClaimError(pin string, err error) *HostError {
	return Wrap(err, ErrGPIOClaim, fmt.Sprintf("cannot claim pin %s", pin)).
		SetSection(pin)
}

// GPIOReadError creates an error for a failed level read
func GPIOReadError(pin string, err error) *HostError {
	return Wrap(err, ErrGPIORead, fmt.Sprintf("cannot read pin %s", pin)).
		SetSection(pin)
}

// Listing errors

// ListingError creates an error for a failed folder enumeration
func ListingError(folder string, err error) *HostError {
	return Wrap(err, ErrListing, fmt.Sprintf("cannot list '%s'", folder)).
		SetSection(folder)
}

// ListingEmptyError creates an error for a listing without usable entries
func ListingEmptyError(folder, kind string) *HostError {
	return New(ErrListingEmpty, fmt.Sprintf("no %s in '%s'", kind, folder)).
		SetSection(folder)
}

// NotListedError creates an error for a file missing from its own folder
func NotListedError(folder, name string) *HostError {
	return New(ErrListingNotListed, fmt.Sprintf("'%s' not found in '%s'", name, folder)).
		SetSection(folder).
		SetContext("file", name)
}

// Printer errors

// PrinterUnreachableError creates an error for a closed printer connection
func PrinterUnreachableError(reason string, err error) *HostError {
	return Wrap(err, ErrPrinterUnreachable, reason)
}

// PrinterCommandError creates an error for a rejected printer command
func PrinterCommandError(command string, err error) *HostError {
	return Wrap(err, ErrPrinterCommand, fmt.Sprintf("%s failed", command)).
		SetSection(command)
}

// PrinterUnsupportedError creates an error for an operation a backend cannot perform
func PrinterUnsupportedError(backend, operation string) *HostError {
	return New(ErrPrinterUnsupported, fmt.Sprintf("%s does not support %s", backend, operation)).
		SetSection(backend)
}

// UnknownGestureError creates an error for an unrecognized trigger channel
func UnknownGestureError(channel int) *HostError {
	return New(ErrUnknownGesture, fmt.Sprintf("unknown button %d", channel))
}

// Is checks if error (or anything it wraps) matches given error code
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code == code
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsListing checks if error is a listing error
func IsListing(err error) bool {
	return Is(err, ErrListing) ||
		Is(err, ErrListingEmpty) ||
		Is(err, ErrListingNotListed)
}

// IsPrinter checks if error is a printer error
func IsPrinter(err error) bool {
	return Is(err, ErrPrinterUnreachable) ||
		Is(err, ErrPrinterCommand) ||
		Is(err, ErrPrinterUnsupported)
}

// CodeOf returns the error code of err, or "" for foreign errors
func CodeOf(err error) ErrorCode {
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code
	}
	return ""
}
