package arrivals

import (
	"context"
	"log"
	"sync"
	"time"

	"unloadtrack/store"
	"unloadtrack/tracker"
)

// Importer turns an arrival into a ready job.
type Importer interface {
	ImportJob(ctx context.Context, a tracker.Arrival) (*store.Job, bool, error)
}

// Source is the part of Client the poller needs.
type Source interface {
	ListReadyJobs() ([]Job, error)
}

// PollStats describes the last poll for the diagnostics page.
type PollStats struct {
	LastPoll  time.Time `json:"last_poll"`
	Seen      int       `json:"seen"`
	Imported  int       `json:"imported"`
	LastError string    `json:"last_error,omitempty"`
}

// Poller imports ready jobs from the upstream service on an interval.
type Poller struct {
	src      Source
	importer Importer
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats PollStats
}

func NewPoller(src Source, importer Importer, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{src: src, importer: importer, interval: interval, stopCh: make(chan struct{})}
}

func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.PollOnce()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.PollOnce()
			}
		}
	}()
}

func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// PollOnce fetches ready jobs and imports each one. It returns the number of
// new jobs.
func (p *Poller) PollOnce() int {
	st := PollStats{LastPoll: time.Now()}
	defer func() {
		p.mu.Lock()
		p.stats = st
		p.mu.Unlock()
	}()

	jobs, err := p.src.ListReadyJobs()
	if err != nil {
		st.LastError = err.Error()
		log.Printf("arrivals: poll: %v", err)
		return 0
	}
	st.Seen = len(jobs)
	for _, j := range jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, created, err := p.importer.ImportJob(ctx, j.Arrival())
		cancel()
		if err != nil {
			st.LastError = err.Error()
			log.Printf("arrivals: import %s: %v", j.Code, err)
			continue
		}
		if created {
			st.Imported++
		}
	}
	if st.Imported > 0 {
		log.Printf("arrivals: imported %d of %d ready jobs", st.Imported, st.Seen)
	}
	return st.Imported
}

func (p *Poller) Stats() PollStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
