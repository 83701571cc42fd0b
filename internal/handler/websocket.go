package handler

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/contrib/websocket"

	"github.com/storyscroll/api/internal/model"
	"github.com/storyscroll/api/internal/registry"
	"github.com/storyscroll/api/internal/service"
	ws "github.com/storyscroll/api/internal/websocket"
	"github.com/storyscroll/api/pkg/response"
)

type WebSocketHandler struct {
	hub     *ws.Hub
	service *service.GenerateService
}

func NewWebSocketHandler(hub *ws.Hub, svc *service.GenerateService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		service: svc,
	}
}

// Job serves /ws/jobs/:jobId. The current record is sent first, then every
// update the pipeline publishes for the job.
func (h *WebSocketHandler) Job(c *websocket.Conn) {
	jobID := c.Params("jobId")

	job, err := h.service.Status(jobID)
	if err != nil {
		code, message := response.CodeServiceError, err.Error()
		if errors.Is(err, registry.ErrJobNotFound) {
			code, message = response.CodeNotFound, "Job not found"
		}
		data, _ := json.Marshal(model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: jobID,
			Error: model.WSError{Code: code, Message: message},
		})
		_ = c.WriteMessage(websocket.TextMessage, data)
		return
	}

	h.hub.HandleConnection(c, jobID, snapshot(job))
}

func snapshot(job model.Job) []byte {
	var msg interface{}
	switch {
	case job.Status == model.JobStatusDone && job.Output != nil:
		msg = model.WSCompleteMessage{Type: model.WSMessageTypeComplete, JobID: job.ID, Output: *job.Output}
	case job.Status == model.JobStatusError:
		message := ""
		if job.Error != nil {
			message = *job.Error
		}
		msg = model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: job.ID,
			Error: model.WSError{Code: job.ErrorCode, Message: message},
		}
	default:
		msg = model.WSProgressMessage{
			Type:     model.WSMessageTypeProgress,
			JobID:    job.ID,
			Progress: job.Progress,
			Status:   job.Status,
			Step:     job.Step,
		}
	}
	data, _ := json.Marshal(msg)
	return data
}
