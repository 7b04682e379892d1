package domain

import (
	"errors"
	"time"
)

type RunState string

const (
	RunResolving   RunState = "resolving"
	RunAnnouncing  RunState = "announcing"
	RunDownloading RunState = "downloading"
	RunQueued      RunState = "queued"
	RunEncoding    RunState = "encoding"
	RunUploading   RunState = "uploading"
	RunCompleted   RunState = "completed"
	RunFailed      RunState = "failed"
)

func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run est l'historique d'un fichier traité par le pipeline.
// Il n'est jamais relu pour prendre une décision : c'est une vue.
type Run struct {
	ID             string
	FileName       string
	AnnouncementID int64
	State          RunState
	Qualities      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	ErrorCode    string
	ErrorMessage string
}

var ErrInvalidTransition = errors.New("invalid run state transition")

func CanTransition(from, to RunState) bool {
	if from == to {
		return true
	}
	if to == RunFailed {
		return !from.IsTerminal()
	}
	switch from {
	case RunResolving:
		return to == RunAnnouncing
	case RunAnnouncing:
		return to == RunDownloading
	case RunDownloading:
		return to == RunQueued
	case RunQueued:
		return to == RunEncoding
	case RunEncoding:
		return to == RunUploading
	case RunUploading:
		// boucle qualité suivante, ou fin.
		return to == RunEncoding || to == RunCompleted
	case RunCompleted, RunFailed:
		return false
	default:
		return false
	}
}
