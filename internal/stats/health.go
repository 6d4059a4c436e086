package stats

// QueueHealth labels the size of the frontier.
type QueueHealth string

const (
	// QueueEmpty means nothing is queued.
	QueueEmpty QueueHealth = "EMPTY"
	// QueueLow means fewer than 10 entries.
	QueueLow QueueHealth = "LOW"
	// QueueHealthy means fewer than 100 entries.
	QueueHealthy QueueHealth = "HEALTHY"
	// QueueFull means fewer than 1000 entries.
	QueueFull QueueHealth = "FULL"
	// QueueOverloaded means 1000 entries or more.
	QueueOverloaded QueueHealth = "OVERLOADED"
)

// HealthOf returns the label for a queue of the given size.
func HealthOf(queued int) QueueHealth {
	switch {
	case queued <= 0:
		return QueueEmpty
	case queued < 10:
		return QueueLow
	case queued < 100:
		return QueueHealthy
	case queued < 1000:
		return QueueFull
	default:
		return QueueOverloaded
	}
}
