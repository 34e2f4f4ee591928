// Package schedule decides which harvesting profiles are due.
package schedule

import "time"

// DefaultCooldown is the wait between two harvests of the same profile.
const DefaultCooldown = 2 * time.Hour

// Profile is the schedule state of one browser identity. A nil NextRunAt
// means the profile has never been stamped and is due immediately.
type Profile struct {
	Name      string
	LastRunAt *time.Time
	NextRunAt *time.Time
}

// Eligible reports whether p may run at now. Equality counts as due.
func (p Profile) Eligible(now time.Time) bool {
	return p.NextRunAt == nil || !p.NextRunAt.After(now)
}

// FindEligible returns the names of the due profiles in input order.
func FindEligible(profiles []Profile, now time.Time) []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.Eligible(now) {
			out = append(out, p.Name)
		}
	}
	return out
}

// StampRun records a successful harvest at now. Call it only after the
// profile's harvest completed; a failed harvest keeps the old schedule.
func StampRun(p Profile, now time.Time, cooldown time.Duration) Profile {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	last := now
	next := now.Add(cooldown)
	p.LastRunAt = &last
	p.NextRunAt = &next
	return p
}
