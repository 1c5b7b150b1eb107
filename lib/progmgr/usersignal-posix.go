//go:build linux || darwin

package progmgr

import (
	"os/signal"
	"syscall"

	"mortar/lib/errco"
)

// On POSIX, this function setups a goroutine that handles incoming SIGUSR1
// signals and runs the functions registered with OnUserSignal
func setupUserSignalHandling(program *program) {
	// set program.sigUser to relay user-defined signals
	signal.Notify(program.sigUser, syscall.SIGUSR1)
	go handleUserSignal(program)
}

// handleUserSignal is responsable for handling SIGUSR1
// [goroutine]
func handleUserSignal(program *program) {
	for {
		sig := <-program.sigUser
		errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "received signal: %s", sig.String())

		program.userSignal()
	}
}
