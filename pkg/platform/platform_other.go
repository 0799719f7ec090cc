//go:build !darwin

// Package platform holds the few host integrations fyne does not cover.
package platform

// SetDockIconVisible is a no-op outside macOS.
func SetDockIconVisible(bool) {}

// BringToFront is a no-op outside macOS; fyne's RequestFocus is enough.
func BringToFront() {}
