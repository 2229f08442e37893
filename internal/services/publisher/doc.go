// Package publisher is the scheduled publication engine.
//
// Each scheduled post gets at most one in-process one-shot timer; scheduling
// again for the same post atomically replaces the previous timer. The database
// row is always written before the timer is armed, so a crash between the two
// loses only the timer, never the schedule. A periodic sweep re-discovers due
// posts (including those whose timers died with a previous process) and a
// separate cleanup pass returns posts stuck in "scheduled" for longer than the
// grace period back to draft.
//
// Publication is made effectively-once by a conditional status transition:
// whoever flips scheduled -> published owns the engagement event; a fire that
// finds zero rows changed lost the race and records nothing.
package publisher
