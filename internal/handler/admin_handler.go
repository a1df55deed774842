package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/upstream"
)

// AdminHandler proxies proctor operations to the upstream platform. The
// engine adds nothing but credential forwarding and the response envelope;
// authorization decisions stay upstream.
type AdminHandler struct {
	base *upstream.Client
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(base *upstream.Client) *AdminHandler {
	return &AdminHandler{base: base}
}

// StartExam godoc
// POST /api/v1/admin/exams/:exam_id/start
func (h *AdminHandler) StartExam(c *gin.Context) {
	h.proxy(c, func(client *upstream.Client) error {
		return client.StartExam(c.Request.Context(), c.Param("exam_id"))
	})
}

// StopExam godoc
// POST /api/v1/admin/exams/:exam_id/stop
func (h *AdminHandler) StopExam(c *gin.Context) {
	h.proxy(c, func(client *upstream.Client) error {
		return client.StopExam(c.Request.Context(), c.Param("exam_id"))
	})
}

// PublishResults godoc
// POST /api/v1/admin/exams/:exam_id/publish
func (h *AdminHandler) PublishResults(c *gin.Context) {
	h.proxy(c, func(client *upstream.Client) error {
		return client.PublishResults(c.Request.Context(), c.Param("exam_id"))
	})
}

// ActiveStudents godoc
// GET /api/v1/admin/exams/:exam_id/active-students
func (h *AdminHandler) ActiveStudents(c *gin.Context) {
	client := h.base.WithToken(middleware.GetBearer(c))
	students, err := client.ActiveStudents(c.Request.Context(), c.Param("exam_id"))
	if err != nil {
		h.failUpstream(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"students": students})
}

func (h *AdminHandler) proxy(c *gin.Context, call func(*upstream.Client) error) {
	client := h.base.WithToken(middleware.GetBearer(c))
	if err := call(client); err != nil {
		h.failUpstream(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) failUpstream(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if ue := upstream.AsError(err); ue != nil && ue.Status >= 400 && ue.Status < 500 {
		status = ue.Status
	}
	response.FailWithDetail(c, status, response.ErrUpstreamRejected, err.Error())
}
