package notify

import (
	"context"
	"errors"
	"fmt"
)

// Fanout dispatches events to all configured notifiers.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout builds a dispatcher over notifiers, ignoring nil entries.
func NewFanout(notifiers []Notifier) *Fanout {
	cp := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			cp = append(cp, n)
		}
	}
	return &Fanout{notifiers: cp}
}

// Publish forwards the event to every notifier.
// It returns the number of notifiers that accepted the event and the joined
// errors of those that did not.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.notifiers) == 0 {
		return 0, nil
	}

	var errs []error
	delivered := 0
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s notifier[%s]: %w", n.Type(), n.Name(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Size returns the number of active notifiers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.notifiers)
}
