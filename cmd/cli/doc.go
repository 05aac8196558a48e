// Package cli constructs the flowscout command-line interface, wiring the
// Cobra command hierarchy, the layered configuration loader, and the zap
// logger shared by the detect, migration, and history commands.
package cli
