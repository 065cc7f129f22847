// Package export renders stored runs for use outside the terminal: PNG
// figures through gonum/plot and CSV at a fixed frame rate.
package export
