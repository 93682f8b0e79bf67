// Package barrier implements the settings-override and synchronization
// scopes a communicate()-style caller composes to get a consistent view
// across concurrent manager processes.
package barrier
