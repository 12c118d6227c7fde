// Package surface holds the per-surface interaction state of a lock session.
// Each lock surface, one per output, owns a State that only the Registry can change.
package surface
