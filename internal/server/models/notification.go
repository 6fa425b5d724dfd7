package models

import "time"

type NotificationCategory string

const (
	NotificationSuccess NotificationCategory = "SUCCESS"
	NotificationDanger  NotificationCategory = "DANGER"
)

type Notification struct {
	ID        int64                `json:"id"`
	AccountID string               `json:"-"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Category  NotificationCategory `json:"category"`
	CreatedAt time.Time            `json:"created_at"`
}

// Achievements summarises an account's activity.
type Achievements struct {
	ImagesPublished int64
	PointsReceived  Points
	PointsSent      Points
}
