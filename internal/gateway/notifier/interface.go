package notifier

// Notifier is fire-and-forget: implementations log delivery failures but
// never surface them to the caller.
type Notifier interface {
	Notify(text string)
}

// Noop discards every message. Used for bots without a configured channel
// and in tests.
type Noop struct{}

func (Noop) Notify(string) {}
