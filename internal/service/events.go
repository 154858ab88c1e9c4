package service

import (
	"time"
)

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
