package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

type progressPrinter struct {
	total    int
	domain   string
	mu       sync.Mutex
	ok       int
	fail     int
	issues   int
	updates  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(total int, domain string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		total:   total,
		domain:  domain,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop()
}

// Observe ingests one orchestrator snapshot. Snapshots always cover the full
// probe set, so counts are recomputed rather than accumulated.
func (p *progressPrinter) Observe(snapshot []scan.Result) {
	ok, fail, issues := 0, 0, 0
	for _, r := range snapshot {
		switch r.Status {
		case scan.StatusComplete:
			ok++
		case scan.StatusError:
			fail++
		}
		issues += len(r.Issues)
	}

	p.mu.Lock()
	p.ok = ok
	p.fail = fail
	p.issues = issues
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", 80))
}

func (p *progressPrinter) loop() {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	ok := p.ok
	fail := p.fail
	issues := p.issues
	p.mu.Unlock()

	settled := ok + fail
	if settled > p.total {
		p.total = settled
	}

	percent := (float64(settled) / float64(p.total)) * 100

	line := fmt.Sprintf("\r[%s] Probes: %d/%d (%.1f%%) OK:%d Fail:%d Issues:%d",
		p.domain, settled, p.total, percent, ok, fail, issues)
	fmt.Fprintf(os.Stdout, "%s", line)
}
