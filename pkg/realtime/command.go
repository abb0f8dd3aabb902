package realtime

// command is a queued room operation, recorded while a subscribe or
// unsubscribe request is in flight and replayed in arrival order once
// it completes.
type command interface {
	isCommand()
}

type renewCommand struct {
	filters any
	handler NotificationHandler
}

type countCommand struct {
	handler CountHandler
}

type unsubscribeCommand struct{}

func (renewCommand) isCommand()       {}
func (countCommand) isCommand()       {}
func (unsubscribeCommand) isCommand() {}
