package session

// Guard is the "protect an active session" capability the host environment
// implements (refresh blocking, shortcut interception, kiosk lock). The
// engine only decides when it is armed: on Active entry, disarmed on exit.
type Guard interface {
	Arm()
	Disarm()
}

// NopGuard is the default for hosts without a guard implementation.
type NopGuard struct{}

func (NopGuard) Arm()    {}
func (NopGuard) Disarm() {}
