// Package ui reports git activity to people watching a console.
//
// Structured command telemetry stays with the execshell executor; the
// observer here only surfaces what the user needs to follow a long history
// scan: which query is running and which one failed.
package ui
