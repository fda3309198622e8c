package notifications

import "time"

var typePriority = map[Type]Priority{
	TypeEmergency:   PriorityCritical,
	TypeAlert:       PriorityHigh,
	TypeAppointment: PriorityHigh,
	TypePayment:     PriorityHigh,
	TypeMessage:     PriorityNormal,
	TypeReminder:    PriorityNormal,
	TypeSystem:      PriorityLow,
	TypeUpdate:      PriorityLow,
}

// Urgent has no lifetime of its own and falls back to normal.
var priorityLifetime = map[Priority]time.Duration{
	PriorityCritical: 24 * time.Hour,
	PriorityHigh:     7 * 24 * time.Hour,
	PriorityNormal:   30 * 24 * time.Hour,
	PriorityLow:      90 * 24 * time.Hour,
}

// ResolvePriority returns the default priority for a notification type.
func ResolvePriority(t Type) Priority {
	if p, ok := typePriority[t]; ok {
		return p
	}
	return PriorityNormal
}

// ResolveExpiration returns when a notification of priority p created at now expires.
func ResolveExpiration(p Priority, now time.Time) time.Time {
	d, ok := priorityLifetime[p]
	if !ok {
		d = priorityLifetime[PriorityNormal]
	}
	return now.Add(d)
}
