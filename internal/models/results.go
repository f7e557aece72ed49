package models

import (
	"time"
)

type Step string

const (
	StepIdle          Step = "idle"
	StepQueued        Step = "queued"
	StepLoadingInputs Step = "loading_inputs"
	StepBuildingIndex Step = "building_index"
	StepMatching      Step = "matching"
	StepDone          Step = "done"
	StepNotFound      Step = "not_found"
	StepFailed        Step = "failed"
)

// Terminal reports whether no further step can follow s
func (s Step) Terminal() bool {
	return s == StepDone || s == StepNotFound || s == StepFailed
}

type Direction string

const (
	// DirectionIn marks a document published the same year as the target or earlier
	DirectionIn Direction = "IN"
	// DirectionOut marks a document published after the target
	DirectionOut Direction = "OUT"
)

// NotFoundTitle is the title carried by the target descriptor when the target is absent from the corpus
const NotFoundTitle = "Not found"

// Shingle is a window of consecutive lowercase words taken from one page
type Shingle struct {
	Text       string `bson:"text" json:"text"`
	DocumentID string `bson:"documentId" json:"documentId"`
	Page       int    `bson:"page" json:"page"`
}

// Match is one shingle shared by the target and a source page
type Match struct {
	Text       string `bson:"text" json:"text"`
	TargetID   string `bson:"targetId" json:"targetId"`
	TargetPage int    `bson:"targetPage" json:"targetPage"`
	SourceID   string `bson:"sourceId" json:"sourceId"`
	SourcePage int    `bson:"sourcePage" json:"sourcePage"`
}

// Connection aggregates every match between the target and one other document
type Connection struct {
	ID        string    `bson:"id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Year      int       `bson:"year" json:"year"`
	Weight    int       `bson:"weight" json:"weight"`
	Direction Direction `bson:"direction" json:"direction"`
	Commons   []Match   `bson:"commons" json:"commons"`
}

// TargetDescriptor identifies the target of a run
type TargetDescriptor struct {
	ID       string `bson:"id" json:"id"`
	Year     int    `bson:"year" json:"year"`
	Title    string `bson:"title" json:"title"`
	NotFound bool   `bson:"notFound" json:"notFound"`
}

// RunResult is the engine's single response to a request
type RunResult struct {
	Target      TargetDescriptor    `bson:"target" json:"target"`
	Connections []Connection        `bson:"connections" json:"connections"`
	Meta        []RawMetadataRecord `bson:"meta" json:"meta"`
}

// RunReport is a persisted run, stored in MongoDB
type RunReport struct {
	RunID       string     `bson:"runId" json:"runId"`
	Target      string     `bson:"target" json:"target"`
	MinWords    int        `bson:"minWords" json:"minWords"`
	Status      Step       `bson:"status" json:"status"`
	Error       string     `bson:"error,omitempty" json:"error,omitempty"`
	Result      *RunResult `bson:"result,omitempty" json:"result,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// RunStatus is the live view of a run kept in Redis
type RunStatus struct {
	Step     Step `json:"step"`
	Progress int  `json:"progress"`
}

// ProgressEvent is published zero or more times before a run's result
type ProgressEvent struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// RunRequest represents a request to compute text reuse against a target
type RunRequest struct {
	RunID    string `json:"runId,omitempty"`
	Target   string `json:"target" binding:"required"`
	MinWords int    `json:"minWords"`
}

// RunResponse represents the response from the run submission endpoint
type RunResponse struct {
	Step  Step   `json:"step"`
	RunID string `json:"runId"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
