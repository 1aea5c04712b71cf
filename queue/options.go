package queue

import (
	"maps"
	"time"
)

// Well-known delivery option keys. Transports interpret the ones they
// support and ignore the rest.
const (
	OptAttempts         = "attempts"
	OptDelay            = "delay" // milliseconds
	OptPriority         = "priority"
	OptJobID            = "jobId"
	OptBackoff          = "backoff"
	OptLIFO             = "lifo"
	OptRemoveOnComplete = "removeOnComplete"
	OptRemoveOnFail     = "removeOnFail"
)

// Options are per-job delivery options.
type Options map[string]any

// Clone returns a shallow copy. A nil Options clones to nil.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	return maps.Clone(o)
}

// Merge returns o shallow-merged with over. Keys in over win.
func (o Options) Merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	maps.Copy(out, o)
	maps.Copy(out, over)
	return out
}

// Attempts returns the maximum number of attempts, at least 1.
func (o Options) Attempts() int {
	n, _ := toInt(o[OptAttempts])
	return max(n, 1)
}

// Delay returns how long the job waits before it becomes available.
func (o Options) Delay() time.Duration {
	n, _ := toInt(o[OptDelay])
	return time.Duration(max(n, 0)) * time.Millisecond
}

func (o Options) Priority() int {
	n, _ := toInt(o[OptPriority])
	return n
}

func (o Options) JobID() string {
	s, _ := o[OptJobID].(string)
	return s
}

// toInt converts the numeric forms produced by Go literals, JSON and YAML.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
