package monitoring

import (
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the history kept for each metric name.
const maxSamples = 1000

// Sample is a single recorded value
type Sample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Summary aggregates the retained samples of one metric
type Summary struct {
	Name  string    `json:"name"`
	Count int       `json:"count"`
	Sum   float64   `json:"sum"`
	Avg   float64   `json:"avg"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Last  float64   `json:"last"`
	At    time.Time `json:"lastAt"`
}

// Collector keeps recent samples in memory. Counters, gauges and timings
// share one representation; a timing is a sample in milliseconds.
type Collector struct {
	mu      sync.RWMutex
	samples map[string][]Sample
	now     func() time.Time
}

func NewCollector() *Collector {
	return &Collector{samples: make(map[string][]Sample), now: time.Now}
}

// WithClock swaps the time source.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

func (c *Collector) Track(name string, value float64, tags map[string]string) {
	s := Sample{Name: name, Value: value, Tags: tags, Timestamp: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	list := append(c.samples[name], s)
	if len(list) > maxSamples {
		list = append(list[:0:0], list[len(list)-maxSamples:]...)
	}
	c.samples[name] = list
}

func (c *Collector) Increment(name string, tags map[string]string) { c.Track(name, 1, tags) }

func (c *Collector) Decrement(name string, tags map[string]string) { c.Track(name, -1, tags) }

// Timing records the milliseconds elapsed since start.
func (c *Collector) Timing(name string, start time.Time, tags map[string]string) {
	c.Track(name, float64(c.now().Sub(start).Milliseconds()), tags)
}

// Samples returns a copy of the retained samples for name, oldest first.
func (c *Collector) Samples(name string) []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Sample(nil), c.samples[name]...)
}

// Snapshot summarises every metric, sorted by name.
func (c *Collector) Snapshot() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Summary, 0, len(c.samples))
	for name, list := range c.samples {
		if len(list) == 0 {
			continue
		}
		sum := Summary{Name: name, Min: list[0].Value, Max: list[0].Value}
		for _, s := range list {
			sum.Count++
			sum.Sum += s.Value
			sum.Min = min(sum.Min, s.Value)
			sum.Max = max(sum.Max, s.Value)
		}
		last := list[len(list)-1]
		sum.Avg = sum.Sum / float64(sum.Count)
		sum.Last = last.Value
		sum.At = last.Timestamp
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
