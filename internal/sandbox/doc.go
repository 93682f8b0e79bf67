// Package sandbox builds the per-task data and runtime directories a
// Run invocation executes against: the settings bundle, the secrets
// vault and the launch script, per the six-step contract.
package sandbox
