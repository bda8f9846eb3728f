// Package events models input events and the system interception layer that
// delivers them: a Quartz event tap backend on macOS (with Accessibility
// approval) and a deterministic Simulator for other platforms, replayed
// scenarios and automated tests.
package events
