package reporter

import "log"

// LogReporter renders events with the standard log package.
type LogReporter struct {
	Logger *log.Logger
}

// NewLogReporter returns a LogReporter writing through log.Default().
func NewLogReporter() *LogReporter {
	return &LogReporter{Logger: log.Default()}
}

func (r *LogReporter) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r *LogReporter) Report(e Event) {
	l := r.logger()
	switch v := e.(type) {
	case CacheHit:
		l.Printf("cache hit [%s] %s stale=%v", v.Class, v.Key, v.Stale)
	case CacheMiss:
		l.Printf("cache miss [%s] %s", v.Class, v.Key)
	case ResolutionStarted:
		l.Printf("resolving %s", v.SpecSummary)
	case ResolutionCompleted:
		l.Printf("resolved %s@%s in %s", v.Name, v.Version, v.Duration)
	case ProviderAttempt:
		if v.Err != nil {
			l.Printf("provider %s failed in %s: %v", v.Provider, v.Duration, v.Err)
		} else {
			l.Printf("provider %s found=%v in %s", v.Provider, v.Found, v.Duration)
		}
	case Disqualified:
		l.Printf("prebuilt disqualified: %s", v.Reason)
	case BuildStarted:
		l.Printf("building %s@%s target=%s", v.Name, v.Version, v.Target)
	case BuildCompleted:
		if v.Err != nil {
			l.Printf("build failed for %s@%s in %s: %v", v.Name, v.Version, v.Duration, v.Err)
		} else {
			l.Printf("built %s@%s in %s", v.Name, v.Version, v.Duration)
		}
	case ExecutionPlan:
		l.Printf("executing %s (fromCache=%v prebuilt=%v)", v.Path, v.FromCache, v.Prebuilt)
	}
}

var _ MessageReporter = (*LogReporter)(nil)

// Nop discards every event. Useful as a default in tests.
type Nop struct{}

func (Nop) Report(Event) {}

var _ MessageReporter = Nop{}
