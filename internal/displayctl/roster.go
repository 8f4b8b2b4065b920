package displayctl

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gosuri/uitable"
	"k8s.io/utils/clock"
)

// Presence is the last availability announced by a host.
type Presence struct {
	Host   string
	Status string
	Since  time.Time
}

// Roster tracks the availability of every agent seen on the broker.
type Roster struct {
	mu    sync.RWMutex
	hosts map[string]Presence
	clock clock.PassiveClock
}

func NewRoster(clk clock.PassiveClock) *Roster {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Roster{hosts: map[string]Presence{}, clock: clk}
}

// Update records status for host and reports whether it changed.
// An empty status removes the host; that is how a cleared retained message arrives.
func (r *Roster) Update(host, status string) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, known := r.hosts[host]
	if status == "" {
		delete(r.hosts, host)
		return Presence{Host: host}, known
	}
	if known && prev.Status == status {
		return prev, false
	}

	p := Presence{Host: host, Status: status, Since: r.clock.Now()}
	r.hosts[host] = p
	return p, true
}

// List returns the known hosts sorted by name.
func (r *Roster) List() []Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Presence, 0, len(r.hosts))
	for _, p := range r.hosts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// Render writes the roster as a table.
func (r *Roster) Render(w io.Writer) error {
	table := uitable.New()
	table.Separator = "  "
	table.AddRow("HOST", "STATUS", "SINCE")
	for _, p := range r.List() {
		table.AddRow(p.Host, p.Status, p.Since.Format(time.RFC3339))
	}
	_, err := fmt.Fprintln(w, table)
	return err
}
