package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/stemsi/examflow/internal/answers"
)

// Mode selects the start-endpoint family a content item belongs to.
type Mode string

const (
	ModeExam     Mode = "exam"
	ModeHomework Mode = "homework"
	ModeQuiz     Mode = "quiz"
)

// SubmissionStatus is the server-side lifecycle of one attempt. The engine
// only observes it; grading happens upstream.
type SubmissionStatus string

const (
	StatusNotStarted SubmissionStatus = "NOT_STARTED"
	StatusStarted    SubmissionStatus = "STARTED"
	StatusSaved      SubmissionStatus = "SAVED"
	StatusSubmitted  SubmissionStatus = "SUBMITTED"
	StatusGraded     SubmissionStatus = "GRADED"
)

// StartKey identifies one start/resume request family. Exactly one start
// call is ever in flight per key; late callers join the pending call.
type StartKey struct {
	Mode        Mode
	SectionType string
	ItemID      string
}

func (k StartKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Mode, k.SectionType, k.ItemID)
}

// StartResult is the outcome of start/resume. Content is embedded when the
// server sends the mock document inline, sparing a second fetch.
type StartResult struct {
	SubmissionID string               `json:"id"`
	Status       SubmissionStatus     `json:"status"`
	Content      json.RawMessage      `json:"content,omitempty"`
	Answers      []answers.WireAnswer `json:"answers,omitempty"`
}

// SubmitResult is the outcome of a final submit.
type SubmitResult struct {
	Status    SubmissionStatus `json:"status"`
	BandScore *float64         `json:"band_score,omitempty"`
}

// Submission hydrates an attempt when its content was not embedded in the
// start response.
type Submission struct {
	ID      string               `json:"id"`
	Status  SubmissionStatus     `json:"status"`
	Content json.RawMessage      `json:"content,omitempty"`
	Answers []answers.WireAnswer `json:"answers,omitempty"`
}

// ActiveStudent is one row of the admin active-students poll.
type ActiveStudent struct {
	StudentID    string           `json:"student_id"`
	Name         string           `json:"name"`
	SubmissionID string           `json:"submission_id"`
	Status       SubmissionStatus `json:"status"`
}
