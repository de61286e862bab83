// Package storage contains concrete Store implementations. The storage
// adapter contract lives in the core package; depend on core.Store in your
// code and select an implementation (like the in-memory store below) at
// wiring time.
//
// Rationale: keeps domain contracts centralized while allowing pluggable
// backends (SQL, document stores, etc.) to be added without introducing
// dependency cycles.
package storage
