package macb

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/lab47/gemnet/gem"
)

// Stats accumulates the statistics counters by name.
type Stats map[string]uint64

// PollStats reads the statistics bank, which clears it, adds it to the
// running totals and returns a copy of them.
func (d *Driver) PollStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pollStats()

	out := make(Stats, len(d.stats))
	for k, v := range d.stats {
		out[k] = v
	}

	return out
}

func (d *Driver) pollStats() {
	deltas := make(Stats)

	d.regs.Do(func(b gem.Bank) {
		for _, c := range gem.Counters {
			if v := c.ReadCounter(b); v != 0 {
				deltas[c.Name] = v
			}
		}
	})

	for _, c := range gem.Counters {
		v, ok := deltas[c.Name]
		if !ok {
			continue
		}

		d.stats[c.Name] += v

		if c.Error {
			d.log.Warn("gem error counter incremented", "counter", c.Name, "delta", v, "total", d.stats[c.Name])
		}
	}

	if d.log.IsTrace() && len(deltas) > 0 {
		d.log.Trace("gem statistics", "deltas", spew.Sdump(deltas))
	}
}
