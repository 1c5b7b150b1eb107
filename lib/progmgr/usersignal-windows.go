//go:build !linux && !darwin

package progmgr

// On Windows (and other non posix systems), we simply do nothing and never handle user-defined signals, since
// SIGUSR does not exists.
func setupUserSignalHandling(program *program) {}
