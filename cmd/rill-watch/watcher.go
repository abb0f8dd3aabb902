package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/rillstream/rill-go/pkg/realtime"
	"github.com/rillstream/rill-go/pkg/wire"
)

// Watcher runs the interactive command loop around a subscription room.
type Watcher struct {
	room     *realtime.Room
	registry *realtime.Registry
	filters  map[string]any
	rl       *readline.Instance

	// Global listener ids, set while "listeners on".
	listenerIDs map[string]uint64
}

func newWatcher(room *realtime.Room, registry *realtime.Registry, config Config) (*Watcher, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rill> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Watcher{
		room:        room,
		registry:    registry,
		filters:     config.Filters,
		rl:          rl,
		listenerIDs: make(map[string]uint64),
	}, nil
}

// Run starts the interactive command loop. It returns when the user
// quits or the connection's listen loop ends.
func (w *Watcher) Run(listenDone <-chan error) error {
	defer w.rl.Close()

	w.printHelp()
	w.cmdRenew(nil)

	lines := make(chan string)
	readErrs := make(chan error, 1)
	go func() {
		for {
			line, err := w.rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				readErrs <- err
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case err := <-listenDone:
			if err != nil && err != io.EOF {
				return fmt.Errorf("connection lost: %w", err)
			}
			return nil

		case <-readErrs:
			// EOF on stdin
			_ = w.room.Unsubscribe()
			return nil

		case line := <-lines:
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}

			parts := strings.Fields(input)
			cmd := strings.ToLower(parts[0])
			args := parts[1:]

			switch cmd {
			case "help", "?":
				w.printHelp()

			case "renew", "r":
				w.cmdRenew(args)

			case "count", "c":
				w.cmdCount()

			case "unsubscribe", "u":
				w.cmdUnsubscribe()

			case "listeners", "l":
				w.cmdListeners(args)

			case "status", "s":
				w.cmdStatus()

			case "quit", "exit", "q":
				_ = w.room.Unsubscribe()
				return nil

			default:
				fmt.Fprintf(w.rl.Stdout(), "unknown command %q, try help\n", cmd)
			}
		}
	}
}

func (w *Watcher) printHelp() {
	fmt.Fprint(w.rl.Stdout(), `commands:
  renew [filters-json]   (re)subscribe, optionally with new filters
  count                  current subscriber count
  unsubscribe            tear down the subscription
  listeners on|off       toggle global lifecycle listeners
  status                 show subscription state
  quit                   unsubscribe and exit
`)
}

func (w *Watcher) cmdRenew(args []string) {
	if len(args) > 0 {
		var filters map[string]any
		if err := json.Unmarshal([]byte(strings.Join(args, " ")), &filters); err != nil {
			fmt.Fprintf(w.rl.Stdout(), "bad filters: %v\n", err)
			return
		}
		w.filters = filters
	}

	err := w.room.Renew(w.filters, func(result *wire.NotificationResult, err error) {
		if err != nil {
			fmt.Fprintf(w.rl.Stdout(), "! %v\n", err)
			return
		}
		w.printNotification(result)
	})
	if err != nil {
		fmt.Fprintf(w.rl.Stdout(), "renew: %v\n", err)
	}
}

func (w *Watcher) cmdCount() {
	err := w.room.Count(func(count int, err error) {
		if err != nil {
			fmt.Fprintf(w.rl.Stdout(), "count: %v\n", err)
			return
		}
		fmt.Fprintf(w.rl.Stdout(), "%d subscriber(s)\n", count)
	})
	if err != nil {
		fmt.Fprintf(w.rl.Stdout(), "count: %v\n", err)
	}
}

func (w *Watcher) cmdUnsubscribe() {
	if err := w.room.Unsubscribe(); err != nil {
		fmt.Fprintf(w.rl.Stdout(), "unsubscribe: %v\n", err)
	}
}

func (w *Watcher) cmdListeners(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(w.rl.Stdout(), "usage: listeners on|off")
		return
	}

	if args[0] == "off" {
		for event, id := range w.listenerIDs {
			w.registry.Off(event, id)
		}
		w.listenerIDs = make(map[string]uint64)
		fmt.Fprintln(w.rl.Stdout(), "global listeners detached")
		return
	}

	if len(w.listenerIDs) > 0 {
		fmt.Fprintln(w.rl.Stdout(), "global listeners already attached")
		return
	}
	for _, event := range []string{realtime.EventSubscribed, realtime.EventUnsubscribed} {
		event := event
		w.listenerIDs[event] = w.registry.On(event, func(subscriptionID string, result *wire.NotificationResult) {
			fmt.Fprintf(w.rl.Stdout(), "* %s on %s (%d subscriber(s))\n", event, subscriptionID, result.Count)
		})
	}
	fmt.Fprintln(w.rl.Stdout(), "global listeners attached")
}

func (w *Watcher) cmdStatus() {
	out := w.rl.Stdout()
	switch {
	case w.room.Subscribing():
		fmt.Fprintln(out, "subscribing...")
	case w.room.RoomID() == "":
		fmt.Fprintln(out, "not subscribed")
	default:
		fmt.Fprintf(out, "subscription %s (room %s) since %s\n",
			w.room.SubscriptionID(), w.room.RoomID(),
			w.room.SubscribedAt().Format("15:04:05"))
	}
}

func (w *Watcher) printNotification(result *wire.NotificationResult) {
	out := w.rl.Stdout()
	switch result.Action {
	case wire.ActionOn:
		fmt.Fprintf(out, "+ peer subscribed (%d subscriber(s))\n", result.Count)
	case wire.ActionOff:
		fmt.Fprintf(out, "- peer unsubscribed (%d subscriber(s))\n", result.Count)
	default:
		payload := "(empty)"
		if len(result.Payload) > 0 {
			var decoded any
			if err := wire.Unmarshal(result.Payload, &decoded); err == nil {
				if data, err := json.Marshal(decoded); err == nil {
					payload = string(data)
				} else {
					payload = fmt.Sprintf("%v", decoded)
				}
			}
		}
		fmt.Fprintf(out, "%s %s: %s\n", result.Action, result.Collection, payload)
	}
}
