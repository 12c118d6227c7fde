// Package view lays out and paints a lock surface and maps input on it back to session messages.
//
// A surface shows, top to bottom: an increment button, an unlock button, the counter, a text
// field, a label echoing the text and a decrement button, centred in the output.
// Painting works from a snapshot of the surface state and never keeps it.
package view
