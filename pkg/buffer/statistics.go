package buffer

// Stats is a point-in-time copy of a ring's counters.
type Stats struct {
	Pushes    int64 `json:"pushes"`
	Pops      int64 `json:"pops"`
	Evictions int64 `json:"evictions"`
	Len       int   `json:"len"`
	HighWater int   `json:"high_water"`
}

// EvictionRate is the fraction of pushes that pushed something out.
func (s Stats) EvictionRate() float64 {
	if s.Pushes == 0 {
		return 0
	}
	return float64(s.Evictions) / float64(s.Pushes)
}

// counters are guarded by the ring's lock.
type counters struct {
	pushes, pops, evictions int64
	highWater               int
}

func (c *counters) sized(n int) {
	if n > c.highWater {
		c.highWater = n
	}
}
