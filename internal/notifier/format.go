package notifier

import "fmt"

// FormatHour renders 0..23 as a 12-hour clock label ("12 AM", "1 PM").
func FormatHour(h int) string {
	switch {
	case h == 0:
		return "12 AM"
	case h == 12:
		return "12 PM"
	case h < 12:
		return fmt.Sprintf("%d AM", h)
	default:
		return fmt.Sprintf("%d PM", h-12)
	}
}

// Compose builds the reminder for a task.
func Compose(text string, hour int, date string) Message {
	at := FormatHour(hour)
	return Message{
		Subject: fmt.Sprintf("Day Planner Reminder: %s at %s", text, at),
		Body:    fmt.Sprintf("Reminder: You have \"%s\" scheduled at %s on %s.", text, at, date),
		Text:    text,
		Hour:    hour,
		Date:    date,
	}
}
