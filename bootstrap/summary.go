package bootstrap

import (
	"fmt"
	"io"
	"time"
)

// RuntimeInfo describes one piece of runtime the App started.
type RuntimeInfo struct {
	Name    string
	Type    string // "scheduler", "defaults", "telemetry"
	Details string
	Active  bool
}

// Summary tracks and displays the engine startup.
type Summary struct {
	serviceName     string
	version         string
	engine          string
	startupDuration time.Duration
	runtime         []RuntimeInfo
	hooks           map[string]int
}

// NewSummary creates a new startup summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{
		serviceName: serviceName,
		version:     version,
		runtime:     make([]RuntimeInfo, 0),
		hooks:       make(map[string]int),
	}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// SetEngine records the engine build the binary links.
func (s *Summary) SetEngine(engine string) {
	s.engine = engine
}

// TrackRuntime adds a runtime entry to the summary.
func (s *Summary) TrackRuntime(name, runtimeType, details string, active bool) {
	s.runtime = append(s.runtime, RuntimeInfo{
		Name:    name,
		Type:    runtimeType,
		Details: details,
		Active:  active,
	})
}

// TrackHooks records how many hooks of a phase ran.
func (s *Summary) TrackHooks(phase string, n int) {
	if n > 0 {
		s.hooks[phase] = n
	}
}

// Runtime returns the tracked runtime entries.
func (s *Summary) Runtime() []RuntimeInfo {
	return s.runtime
}

// Display writes the startup summary to w.
func (s *Summary) Display(w io.Writer) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "🚀 %s v%s started in %.2fs\n",
		s.serviceName, s.version, s.startupDuration.Seconds())
	if s.engine != "" {
		fmt.Fprintf(w, "   engine %s\n", s.engine)
	}
	fmt.Fprintf(w, "\n")

	if len(s.runtime) > 0 {
		fmt.Fprintf(w, "📊 Runtime\n")
		for i, r := range s.runtime {
			prefix := "├──"
			if i == len(s.runtime)-1 {
				prefix = "└──"
			}
			fmt.Fprintf(w, "   %s %s %s: %s\n", prefix, statusIcon(r.Active), r.Name, r.Details)
		}
	} else {
		fmt.Fprintf(w, "   └── No runtime registered\n")
	}

	phases := []string{"start", "configure", "ready", "stop"}
	var listed []string
	for _, p := range phases {
		if s.hooks[p] > 0 {
			listed = append(listed, p)
		}
	}
	if len(listed) > 0 {
		fmt.Fprintf(w, "\n🪝 Hooks\n")
		for i, p := range listed {
			prefix := "├──"
			if i == len(listed)-1 {
				prefix = "└──"
			}
			fmt.Fprintf(w, "   %s %s (%d)\n", prefix, p, s.hooks[p])
		}
	}

	fmt.Fprintf(w, "\n")
}

func statusIcon(active bool) string {
	if active {
		return "✅"
	}
	return "⏸️"
}
