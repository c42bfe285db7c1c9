package settlement

import "time"

func SetSchedulerClock(s *Scheduler, now func() time.Time) { s.now = now }
