package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/guarzo/mltrends/internal/enrich"
)

// Indicator draws a single-line progress bar. It is safe to update from
// observer callbacks running on other goroutines.
type Indicator struct {
	mu         sync.Mutex
	out        io.Writer
	enabled    bool
	message    string
	percent    int
	done       int
	startTime  time.Time
	lastUpdate time.Time
	now        func() time.Time
}

// NewIndicator creates an indicator writing to out (stderr when nil).
func NewIndicator(message string, out io.Writer, enabled bool) *Indicator {
	if out == nil {
		out = os.Stderr
	}
	return &Indicator{
		out:       out,
		enabled:   enabled,
		message:   message,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Start begins the progress indication
func (p *Indicator) Start() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = p.now()
	p.lastUpdate = time.Time{}
	fmt.Fprintf(p.out, "%s...\n", p.message)
}

// Update records done items at percent complete. Redraws are throttled to
// one per 100ms except when reaching 100%.
func (p *Indicator) Update(done, percent int) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if done == p.done && percent == p.percent {
		return
	}
	p.done, p.percent = done, clamp(percent)

	now := p.now()
	if now.Sub(p.lastUpdate) < 100*time.Millisecond && p.percent < 100 {
		return
	}
	p.lastUpdate = now

	fmt.Fprintf(p.out, "\r%s [%s] %d items (%d%%)", p.message, bar(p.percent), p.done, p.percent)
}

// Observe returns a session observer that feeds this indicator.
func (p *Indicator) Observe() func(enrich.Snapshot) {
	return func(s enrich.Snapshot) {
		p.Update(len(s.Items), s.Progress)
	}
}

// Finish completes the progress indication
func (p *Indicator) Finish() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\r%s ✓ %d items in %s\n", p.message, p.done, formatDuration(p.now().Sub(p.startTime)))
}

// FinishWithError completes the progress indication with an error
func (p *Indicator) FinishWithError(err error) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\r%s ✗ Failed after %s: %v\n", p.message, formatDuration(p.now().Sub(p.startTime)), err)
}

func bar(percent int) string {
	const width = 30
	filled := percent * width / 100

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			b.WriteString("█")
		case i == filled && percent < 100:
			b.WriteString("▓")
		default:
			b.WriteString("░")
		}
	}
	return b.String()
}

func clamp(percent int) int {
	return max(0, min(100, percent))
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
