// Package engine resolves the named executor, expression engines and
// execution engines a Scanner pass evaluates a task against.
package engine
