// Package logging provides structured, rotating file logging for the
// organizer engine. When debug logging is enabled, comprehensive logs
// are written to ~/.organizer/logs/ for troubleshooting scan, apply,
// and watch runs.
//
// By default logging is minimal and goes to stderr only.
package logging
