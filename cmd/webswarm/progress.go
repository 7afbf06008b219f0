package main

import (
	"fmt"
	"io"
	"strings"

	"webswarm/internal/domain"
	"webswarm/internal/messaging/inproc"
	"webswarm/internal/report"
)

const progressSubscriber = "cli-progress"

// startProgress echoes bus events to out until the returned stop is called.
func startProgress(bus *inproc.Bus, out io.Writer) (stop func()) {
	events := bus.Subscribe(progressSubscriber)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			printEvent(out, evt)
		}
	}()
	return func() {
		bus.Unsubscribe(progressSubscriber)
		<-done
	}
}

func printEvent(out io.Writer, evt domain.Event) {
	switch evt.Kind {
	case domain.EventKindPhase:
		fmt.Fprintf(out, "\n%s\n[%s] %s\n%s\n", rule, strings.ToUpper(evt.Phase), evt.Message, rule)
	case domain.EventKindSlot:
		fmt.Fprintf(out, "[%s] %s\n", evt.AgentID, evt.Message)
	case domain.EventKindOutcome:
		if evt.Outcome != nil {
			fmt.Fprintln(out, report.Line(*evt.Outcome))
		}
	case domain.EventKindFinished:
		fmt.Fprintf(out, "run %s finished: %s\n", evt.RunID, evt.Message)
	}
}

var rule = strings.Repeat("=", 60)
