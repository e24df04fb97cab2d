package drive

// DefaultPeriod is the number of cycles between turn direction changes.
const DefaultPeriod = 100

// Oscillator drives the car in alternating arcs without any input. The
// first switch comes after half a period so the car starts centered on its
// track.
type Oscillator struct {
	period    int
	remaining int
	turn      bool
}

func NewOscillator(period int) *Oscillator {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Oscillator{period: period, remaining: period / 2}
}

func (o *Oscillator) Next() Command {
	was := o.remaining
	o.remaining--
	if was == 0 {
		o.remaining = o.period
		o.turn = !o.turn
	}

	if o.turn {
		return Command{Steer: -0.5, Left: 0.5, Right: 0.1}
	}
	return Command{Steer: 0.5, Left: -0.1, Right: -0.5}
}
