package progmgr

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mortar/lib/errco"
)

var (
	// mortar version
	MrtVersion string = "v1.0.0"

	// mortar program
	mrt *program = &program{
		startTime: time.Now(),
		sigExit:   make(chan os.Signal, 1),
		sigUser:   make(chan os.Signal, 1),
		done:      make(chan struct{}),
	}
)

type program struct {
	startTime time.Time      // mortar program start time
	sigExit   chan os.Signal // channel through which OS termination signals are notified
	sigUser   chan os.Signal // channel through which OS user-defined signals are notified

	m      sync.Mutex
	onExit []func() // functions executed at termination (in reverse registration order)
	onUser []func() // functions executed when a user-defined signal is received
	done   chan struct{}
}

// MrtMgr handles exit signals for mortar.
// On termination the functions registered with OnExit are executed and Done is closed.
// [goroutine]
func MrtMgr() {
	// set sigExit to relay termination signals
	signal.Notify(mrt.sigExit, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)

	// set sigUser to relay user-defined signals (posix only)
	setupUserSignalHandling(mrt)

	sig := <-mrt.sigExit
	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "received signal: %s", sig.String())

	mrt.terminate()
}

// AutoTerminate terminates mortar as if a termination signal was received
func AutoTerminate() {
	select {
	case mrt.sigExit <- syscall.SIGINT:
	default:
		// termination already requested
	}
}

// OnExit registers f to be executed when mortar terminates
func OnExit(f func()) {
	mrt.m.Lock()
	defer mrt.m.Unlock()
	mrt.onExit = append(mrt.onExit, f)
}

// OnUserSignal registers f to be executed when SIGUSR1 is received
func OnUserSignal(f func()) {
	mrt.m.Lock()
	defer mrt.m.Unlock()
	mrt.onUser = append(mrt.onUser, f)
}

// Done returns a channel closed when mortar termination is completed
func Done() <-chan struct{} {
	return mrt.done
}

// Uptime returns the time passed since mortar started
func Uptime() time.Duration {
	return time.Since(mrt.startTime)
}

// terminate executes the exit functions and closes the done channel
func (p *program) terminate() {
	p.m.Lock()
	onExit := p.onExit
	p.onExit = nil
	p.m.Unlock()

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "terminating mortar...")

	for i := len(onExit) - 1; i >= 0; i-- {
		onExit[i]()
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "exiting mortar")

	close(p.done)
}

// userSignal executes the user signal functions
func (p *program) userSignal() {
	p.m.Lock()
	onUser := append([]func(){}, p.onUser...)
	p.m.Unlock()

	for _, f := range onUser {
		f()
	}
}
