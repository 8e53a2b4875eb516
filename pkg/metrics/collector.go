package metrics

import (
	"time"

	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// Collector periodically samples the store and publishes gauge metrics
// that aren't naturally updated inline by the component that changed them
// (job queue depth, share counts, slow-query backlog).
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

func NewCollector(store storage.Store) *Collector {
	return &Collector{store: store, stopCh: make(chan struct{})}
}

// Start begins collecting on a 15s tick, matching the article network's
// typical posting cadence closely enough that a stuck queue shows up
// within one or two scrape intervals.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectFolders()
	c.collectJobs()
	c.collectShares()
	c.collectSlowQueries()
}

func (c *Collector) collectFolders() {
	folders, err := c.store.ListFolders()
	if err != nil {
		return
	}
	FoldersTracked.Set(float64(len(folders)))
}

func (c *Collector) collectJobs() {
	states := []types.JobState{
		types.JobQueued, types.JobRunning, types.JobRetrying,
		types.JobPaused, types.JobCompleted, types.JobFailed, types.JobCancelled,
	}
	counts := make(map[string]map[string]int)
	for _, state := range states {
		jobs, err := c.store.ListJobsByState(state)
		if err != nil {
			continue
		}
		for _, job := range jobs {
			if counts[job.Kind] == nil {
				counts[job.Kind] = make(map[string]int)
			}
			counts[job.Kind][string(state)]++
		}
	}
	for kind, byState := range counts {
		for state, n := range byState {
			JobsTotal.WithLabelValues(kind, state).Set(float64(n))
		}
	}
}

func (c *Collector) collectShares() {
	shares, err := c.store.ListShares()
	if err != nil {
		return
	}
	var active int
	for _, s := range shares {
		if !s.Revoked {
			active++
		}
	}
	SharesActive.Set(float64(active))
}

func (c *Collector) collectSlowQueries() {
	SlowQueriesTotal.Set(float64(len(c.store.SlowQueries())))
}
