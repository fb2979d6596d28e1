package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tool enumerates the generator surfaces of the media suite. Each tool owns
// an independent single-flight lock per user.
type Tool string

const (
	ToolBabyImage    Tool = "baby_image"
	ToolBabyPodcast  Tool = "baby_podcast"
	ToolTextToVideo  Tool = "text_to_video"
	ToolImageToVideo Tool = "image_to_video"
	ToolLipSync      Tool = "lip_sync"
	ToolEarthZoom    Tool = "earth_zoom"
)

// Tools lists every supported tool in a stable order.
var Tools = []Tool{
	ToolBabyImage,
	ToolBabyPodcast,
	ToolTextToVideo,
	ToolImageToVideo,
	ToolLipSync,
	ToolEarthZoom,
}

// Valid reports whether t is a known tool tag.
func (t Tool) Valid() bool {
	for _, known := range Tools {
		if t == known {
			return true
		}
	}
	return false
}

var titleCaser = cases.Title(language.Und)

// Label returns a human-readable name for the tool, e.g. "Baby Podcast".
func (t Tool) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(t), "_", " "))
}

// JobStatus enumerates job lifecycle states. Transitions are forward-only.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusTimedOut   JobStatus = "timed_out"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return true
	}
	return false
}

// ActiveStatuses are the states that hold the single-flight lock.
var ActiveStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing}

// TransitionSources returns the statuses from which a transition into target
// is legal. An empty result means the target is never a valid destination
// (queued is assigned only at creation).
func TransitionSources(target JobStatus) []JobStatus {
	switch target {
	case JobStatusProcessing:
		return []JobStatus{JobStatusQueued}
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return []JobStatus{JobStatusQueued, JobStatusProcessing}
	}
	return nil
}

// CanTransition reports whether from -> to is a legal forward transition.
func CanTransition(from, to JobStatus) bool {
	for _, src := range TransitionSources(to) {
		if src == from {
			return true
		}
	}
	return false
}

// Job is one user-initiated generation request, tracked end to end.
type Job struct {
	ID              string
	UserID          string
	Tool            Tool
	Status          JobStatus
	PayloadJSON     []byte
	CreditsReserved int
	ResultURI       string
	ErrorMessage    string
	ProviderRef     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether the job still holds the single-flight lock.
func (j *Job) Active() bool {
	return !j.Status.Terminal()
}

// TransitionFields carries the optional columns written alongside a status
// transition. ResultURI is meaningful only for completed, ErrorMessage only
// for failed.
type TransitionFields struct {
	ResultURI    string
	ErrorMessage string
}
