package upstream

import (
	"context"
	"fmt"
	"net/http"
)

// Administrative operations outside the student session lifecycle. They
// mutate the same exam/submission state the engine observes (an exam that
// was never started cannot begin a session), so they live on the same
// client and error taxonomy.

// StartExam flips the exam-active flag so student sessions may begin.
func (c *Client) StartExam(ctx context.Context, examID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/start-exam/", examID), nil, nil)
}

// StopExam ends the exam; no new sessions can start afterwards.
func (c *Client) StopExam(ctx context.Context, examID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/stop-exam/", examID), nil, nil)
}

// PublishResults releases grades. The server rejects this while any student
// is still active; the error surfaces through the normal taxonomy.
func (c *Client) PublishResults(ctx context.Context, examID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%s/publish-results/", examID), nil, nil)
}

// ActiveStudents lists students still working. Proctor views poll this
// every few seconds while the exam is live.
func (c *Client) ActiveStudents(ctx context.Context, examID string) ([]ActiveStudent, error) {
	var res struct {
		Students []ActiveStudent `json:"students"`
	}
	path := fmt.Sprintf("/tasks/%s/active-students/", examID)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Students, nil
}
