package model

import (
	"time"

	"github.com/google/uuid"
)

// Submission is the proof history for one (user, task) pair. A username and a
// screenshot may both be attached; neither is replaced once recorded.
type Submission struct {
	UserTelegramID   int64
	TaskID           uuid.UUID
	TaskName         string
	Platform         string
	Username         string
	ScreenshotFileID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s *Submission) ProofKind() ProofKind {
	switch {
	case s.Username != "" && s.ScreenshotFileID != "":
		return ProofBoth
	case s.ScreenshotFileID != "":
		return ProofScreenshot
	default:
		return ProofUsername
	}
}
