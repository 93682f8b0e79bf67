// Package command implements the control-bus callback: it turns one
// COMMUNICATE or FINISH bus.Message into a Scanner invocation and the
// counter/cleanup bookkeeping around it.
package command
