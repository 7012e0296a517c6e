package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskActive   TaskStatus = "active"
	TaskInactive TaskStatus = "inactive"
)

func (s TaskStatus) Valid() bool {
	return s == TaskActive || s == TaskInactive
}

type ProofKind string

const (
	ProofUsername   ProofKind = "username"
	ProofScreenshot ProofKind = "screenshot"
	ProofBoth       ProofKind = "both"
)

func (k ProofKind) Valid() bool {
	switch k {
	case ProofUsername, ProofScreenshot, ProofBoth:
		return true
	}
	return false
}

type Task struct {
	ID        uuid.UUID
	Name      string
	Reward    int64
	Status    TaskStatus
	Requires  ProofKind
	Details   string
	CreatedAt time.Time
}

var Platforms = []string{"twitter", "instagram", "youtube"}

var platformNames = map[string]string{
	"twitter":   "Twitter",
	"instagram": "Instagram",
	"youtube":   "YouTube",
}

// PlatformName returns the display name of a recognized platform.
func PlatformName(p string) string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return p
}

// NormalizePlatform lowercases p and reports whether it is a recognized platform.
func NormalizePlatform(p string) (string, bool) {
	p = strings.ToLower(strings.TrimSpace(p))
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return p, false
}
