// Package runner implements Run: handing a prepared sandbox off to a
// concrete execution backend. Every implementation's contract is that
// invoking Run must, at some point, cause exactly one FINISH message to
// appear on the control channel.
package runner
