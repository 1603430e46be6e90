package services

import (
	"sort"

	"support-chat-backend/internal/models"
)

const truncatedMarker = "... [message truncated]"

// BuildHistoryWindow returns the most recent maxHistory messages, oldest
// first, as chat turns. Input order does not matter and the input slice is
// not modified. Texts longer than maxChars runes are cut and marked; a
// non-positive maxChars disables that.
func BuildHistoryWindow(messages []*models.Message, maxHistory, maxChars int) []models.ChatMessage {
	if maxHistory <= 0 || len(messages) == 0 {
		return []models.ChatMessage{}
	}

	sorted := make([]*models.Message, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	if len(sorted) > maxHistory {
		sorted = sorted[len(sorted)-maxHistory:]
	}

	window := make([]models.ChatMessage, 0, len(sorted))
	for _, m := range sorted {
		window = append(window, models.ChatMessage{
			Role:    m.Sender.Role(),
			Content: truncateRunes(m.Text, maxChars),
		})
	}
	return window
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + truncatedMarker
}
