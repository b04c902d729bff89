package domain

import "time"

// CategoryCapacity is the platform limit on channels per category.
const CategoryCapacity = 50

// CategorySlot is one capacity-bounded channel container. Slots for the same
// (guild, kind, region) are scanned in Position order at allocation time.
type CategorySlot struct {
	CategoryID   string
	GuildID      string
	Kind         TicketKind
	Region       string
	Position     int
	ChannelCount int
	Capacity     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Full reports whether the slot has no room at the last observed count.
func (s *CategorySlot) Full() bool {
	return s.ChannelCount >= s.Capacity
}
