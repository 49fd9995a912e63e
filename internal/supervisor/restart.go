package supervisor

import (
	"log/slog"
	"os"
	"sync"
)

// ExitTempFail is EX_TEMPFAIL from sysexits.h.
const ExitTempFail = 75

// ProcessRestarter restarts by exiting; the service manager starts a fresh
// process. Only the first Restart call has any effect, so the watchdog and
// the supervisor can share one instance.
type ProcessRestarter struct {
	Log *slog.Logger
	// Before runs once ahead of exit, e.g. to de-energize relays.
	Before func()
	// Exit defaults to os.Exit.
	Exit func(code int)

	once sync.Once
}

// Restart logs reason and exits with ExitTempFail.
func (p *ProcessRestarter) Restart(reason string) {
	p.once.Do(func() {
		if p.Log != nil {
			p.Log.Error("restarting process", "reason", reason, "exitCode", ExitTempFail)
		}
		if p.Before != nil {
			p.Before()
		}
		exit := p.Exit
		if exit == nil {
			exit = os.Exit
		}
		exit(ExitTempFail)
	})
}
