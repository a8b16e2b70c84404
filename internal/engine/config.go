package engine

import "time"

// Config names every engine knob spec.md §4.4/§6 lists, plus the
// trim/priority knobs of §6.
type Config struct {
	MinGroupDelay        time.Duration
	MaxGroupDelay        time.Duration
	RoundPauseMs         time.Duration
	SessionMessageLimit  int
	SessionCooldown      time.Duration
	MaxFloodPerSession   int
	FloodFreeze          time.Duration
	MaxConsecutiveErrors int
	GroupCooldown        time.Duration
	LongPauseInterval    int
	LongPauseMin         time.Duration
	LongPauseMax         time.Duration
	ConnectionRetries int
	// MaxJobLogEntries is the hard cap at which the ring buffer is trimmed
	// back down to jobLogTrimTo entries (spec.md §6: "≥ 300, default 500
	// trim-to 300").
	MaxJobLogEntries int
	PriorityTopN     int
}

// DefaultConfig carries every literal default named in spec.md §4.2-§4.5.
func DefaultConfig() Config {
	return Config{
		MinGroupDelay:        5 * time.Second,
		MaxGroupDelay:        20 * time.Second,
		RoundPauseMs:         15 * time.Minute,
		SessionMessageLimit:  30,
		SessionCooldown:      5 * time.Minute,
		MaxFloodPerSession:   3,
		FloodFreeze:          30 * time.Minute,
		MaxConsecutiveErrors: 5,
		GroupCooldown:        10 * time.Minute,
		LongPauseInterval:    10,
		LongPauseMin:         30 * time.Second,
		LongPauseMax:         90 * time.Second,
		ConnectionRetries:    3,
		MaxJobLogEntries:     500,
		PriorityTopN:         50,
	}
}

const jobLogTrimTo = 300
