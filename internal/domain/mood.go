package domain

import "time"

// MoodEntry is a single submitted mood label.
type MoodEntry struct {
	Label string
}

// MoodLog is the ordered history of a user's submissions, oldest first.
type MoodLog []MoodEntry

// Labels returns the log as plain strings in submission order.
func (l MoodLog) Labels() []string {
	labels := make([]string, len(l))
	for i := range l {
		labels[i] = l[i].Label
	}
	return labels
}

// LogFromLabels builds a MoodLog from durable labels.
func LogFromLabels(labels []string) MoodLog {
	log := make(MoodLog, len(labels))
	for i, label := range labels {
		log[i] = MoodEntry{Label: label}
	}
	return log
}

// StreakState tracks consecutive-day submissions for a single user.
// Count is zero only before the first accepted submission.
type StreakState struct {
	LastSubmission *time.Time
	Count          int
}

// MoodRecord is the durable form of one user's log.
type MoodRecord struct {
	UserID int64
	Labels []string
}
