package flash

import "time"

// State is the position of a Programmer in its run.
type State int

const (
	Idle State = iota
	DriverStaged
	Programming
	Verifying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DriverStaged:
		return "driver-staged"
	case Programming:
		return "programming"
	case Verifying:
		return "verifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Progress is passed to the ProgressCallback after every step.
type Progress struct {
	Phase State
	// CurrentPage counts pages finished in the current phase.
	CurrentPage  int
	TotalPages   int
	Percentage   float64
	BytesWritten int
	ElapsedTime  time.Duration
}

// ProgressCallback should return quickly; it runs between device commands.
type ProgressCallback func(Progress)
