package main

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"stash/internal/queue"
)

const dataPreviewWidth = 40

func buildQueueListRows(items []queue.Item, maxAttempts int, now time.Time) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		attempts := strconv.Itoa(item.Attempts)
		if item.Exhausted(maxAttempts) {
			attempts += " (max)"
		}
		lastRetry := "-"
		if item.LastRetry != nil {
			lastRetry = humanize.RelTime(*item.LastRetry, now, "ago", "from now")
		}
		rows = append(rows, []string{
			item.ID,
			item.Action,
			humanize.RelTime(item.Timestamp, now, "ago", "from now"),
			attempts,
			lastRetry,
			previewData(item.Data),
		})
	}
	return rows
}

func previewData(data []byte) string {
	if len(data) == 0 {
		return "null"
	}
	runes := []rune(string(data))
	if len(runes) <= dataPreviewWidth {
		return string(runes)
	}
	return string(runes[:dataPreviewWidth-1]) + "…"
}
