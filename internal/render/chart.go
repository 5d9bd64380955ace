package render

import (
	"sort"
	"sync"
	"time"
)

// Dataset is one line of a chart.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Chart is the data behind one chart widget.
type Chart struct {
	Name      string    `json:"name"`
	Labels    []string  `json:"labels"`
	Datasets  []Dataset `json:"datasets"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Charts holds the current data of every chart. It is passed to whoever
// updates charts instead of being shared as a global.
type Charts struct {
	mu     sync.RWMutex
	charts map[string]Chart
}

func NewCharts() *Charts {
	return &Charts{charts: make(map[string]Chart)}
}

// Set replaces a chart unless the stored one was issued later.
func (c *Charts) Set(ch Chart) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.charts[ch.Name]; ok && ch.Seq < cur.Seq {
		return false
	}
	c.charts[ch.Name] = ch
	return true
}

func (c *Charts) Get(name string) (Chart, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.charts[name]
	return ch, ok
}

// Names lists the charts that have data, sorted.
func (c *Charts) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.charts))
	for n := range c.charts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
