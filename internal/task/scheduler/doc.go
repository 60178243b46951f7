// Package scheduler fires registered jobs on cron or interval schedules.
//
// Runs never overlap per schedule: a trigger that arrives while the previous
// run is still in flight is skipped, not queued. Missed triggers (process
// down, clock jumps) are not caught up.
package scheduler
