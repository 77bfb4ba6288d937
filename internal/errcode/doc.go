// Package errcode defines the normalized error taxonomy of the Wi-Fi connectivity manager.
//
// Every failure crossing a package boundary is, or wraps, one of the sentinels declared here.
// Remote supplicant failures are wrapped in a CallError that keeps the service's own error
// text for logging while normalizing to ErrInternal for callers.
package errcode
