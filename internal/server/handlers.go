package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"sidekick-relay/internal/models"
	"sidekick-relay/internal/prompt"
)

type startResponse struct {
	SessionID string `json:"session_id"`
}

type historyResponse struct {
	SessionKey string        `json:"session_key"`
	Turns      []models.Turn `json:"turns"`
}

type modelsResponse struct {
	Object string         `json:"object"`
	Data   []models.Model `json:"data"`
}

// composeRequest accepts either a single submission or, when Compare is set,
// a multi-page analysis.
type composeRequest struct {
	prompt.Input
	Compare *prompt.CompareInput `json:"compare,omitempty"`
}

// descriptorPayload is the inbound form of a request descriptor. The outer
// SystemPrompt shadows the embedded one so a missing key can be told apart
// from an explicit empty prompt.
type descriptorPayload struct {
	models.RequestDescriptor
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

func (s *Server) handleStart(c echo.Context) error {
	var payload descriptorPayload
	if err := decodeRequestBody(c, &payload); err != nil {
		return err
	}

	id, err := s.start(payload)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusAccepted, startResponse{SessionID: id})
}

// start fills blank descriptor fields from the backend defaults and launches
// a session, returning its id. The default system prompt is used only when
// the payload omitted one.
func (s *Server) start(payload descriptorPayload) (string, error) {
	defaults := s.BackendDefaults()
	desc := defaults.Apply(payload.RequestDescriptor)
	desc.SystemPrompt = defaults.SystemPromptOr(payload.SystemPrompt)
	session, err := s.relay.Start(desc)
	if err != nil {
		return "", err
	}
	return session.ID(), nil
}

func (s *Server) handleStop(c echo.Context) error {
	stopped := s.relay.Cancel()
	slog.Debug("stop requested", "stopped", stopped)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetHistory(c echo.Context) error {
	key := strings.TrimSpace(c.QueryParam("session_key"))
	if key == "" {
		key = models.DefaultSessionKey
	}
	turns := s.relay.History(key)
	if turns == nil {
		turns = []models.Turn{}
	}
	return c.JSON(http.StatusOK, historyResponse{SessionKey: key, Turns: turns})
}

func (s *Server) handleAppendHistory(c echo.Context) error {
	var turn models.Turn
	if err := decodeRequestBody(c, &turn); err != nil {
		return err
	}
	if err := s.relay.AppendHistory(turn); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearHistory(c echo.Context) error {
	s.relay.ClearHistory()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleComposePrompt(c echo.Context) error {
	var req composeRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	var (
		res prompt.Result
		err error
	)
	if req.Compare != nil {
		res, err = prompt.ComposeCompare(*req.Compare)
	} else {
		res, err = prompt.Compose(req.Input)
	}
	if err != nil {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCommands(c echo.Context) error {
	prefix := c.QueryParam("prefix")
	if prefix == "" {
		return c.JSON(http.StatusOK, prompt.Commands())
	}
	matches := prompt.CompleteCommand(prefix)
	if matches == nil {
		matches = []prompt.Command{}
	}
	return c.JSON(http.StatusOK, matches)
}

func (s *Server) handleModels(c echo.Context) error {
	base := strings.TrimSpace(c.QueryParam("endpoint_base"))
	if base == "" {
		base = s.BackendDefaults().EndpointBase
	}

	list, err := s.models.ListModels(c.Request().Context(), base)
	if err != nil {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: err.Error(),
			Type:    "upstream_error",
		}
	}
	if list == nil {
		list = []models.Model{}
	}
	return c.JSON(http.StatusOK, modelsResponse{Object: "list", Data: list})
}
