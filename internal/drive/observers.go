package drive

import "context"

// Observers fans cycle reports and events out to several observers in order.
// Nil entries are skipped.
type Observers []Observer

func (o Observers) Cycle(ctx context.Context, r CycleReport) {
	for _, obs := range o {
		if obs != nil {
			obs.Cycle(ctx, r)
		}
	}
}

func (o Observers) Event(ctx context.Context, kind EventKind, detail string) {
	for _, obs := range o {
		if obs != nil {
			obs.Event(ctx, kind, detail)
		}
	}
}
