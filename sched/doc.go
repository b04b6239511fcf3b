// Package sched holds the tick and timer schedulers.
//
// Both resolve a task with its own id when its entry expires. The host
// drives them once per frame: Ticks.Tick counts host ticks, Timers.Drain
// compares deadlines against the clock. Resolution runs with the
// scheduler's lock released, so a resumed script may schedule again; such
// entries are not considered until the next drain.
package sched
