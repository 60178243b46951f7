package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{
			Name:    d.name,
			Spec:    d.spec,
			Timeout: d.timeout,
			Running: d.running.Load(),
			Skipped: d.skipped.Load(),
		}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	return Snapshot{Enabled: enabled, Timezone: tz, Schedules: items}
}

// Next returns the next trigger time of the named schedule, zero if unknown
// or not running.
func (s *Service) Next(name string) time.Time {
	for _, it := range s.Snapshot().Schedules {
		if it.Name == name {
			return it.Next
		}
	}
	return time.Time{}
}
