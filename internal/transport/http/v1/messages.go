package v1

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xeipuuv/gojsonschema"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
)

// Query defaults for GET messages.
const (
	defaultPageNum  = 1
	defaultPageSize = 10
)

// SendMessageRequest is the body of POST .../messages.
type SendMessageRequest struct {
	SessionID   string             `json:"sessionId"`
	MessageID   string             `json:"messageId"`
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"messageType"`
	SendTime    *string            `json:"sendTime"`
}

// SendMessageResponse is the data of a processed message.
type SendMessageResponse struct {
	UserMessageID string         `json:"userMessageId"`
	AIMessage     domain.Message `json:"aiMessage"`
}

// SendMessage posts a user message and returns the AI reply.
// POST /api/ai/sessions/:sessionId/messages
func (h *Handler) SendMessage(c echo.Context) error {
	sessionID := c.Param("sessionId")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read request body")
	}
	var req SendMessageRequest
	if err := decodeBody(body, sendMessageSchema, &req); err != nil {
		return h.failWith(c, err)
	}

	if req.SessionID != sessionID {
		h.logger.Warn().Str("path_session_id", sessionID).Str("body_session_id", req.SessionID).Msg("Session id mismatch")
		return fail(c, http.StatusBadRequest, "session id in path does not match request body")
	}

	sendTime, err := parseSendTime(req.SendTime)
	if err != nil {
		return h.failWith(c, err)
	}

	result, err := h.service.SendMessage(c.Request().Context(), service.SendMessageInput{
		SessionID: sessionID,
		MessageID: req.MessageID,
		Type:      req.MessageType,
		Content:   req.Content,
		SendTime:  sendTime,
	})
	if err != nil {
		return h.failWith(c, err)
	}

	return ok(c, http.StatusOK, "message processed", SendMessageResponse{
		UserMessageID: result.UserMessage.ID,
		AIMessage:     result.AIMessage,
	})
}

// QueryMessages returns one page of history, newest first.
// GET /api/ai/sessions/:sessionId/messages?startMessageId=&pageNum=1&pageSize=10
func (h *Handler) QueryMessages(c echo.Context) error {
	pageNum, err := queryInt(c.QueryParam("pageNum"), "pageNum", defaultPageNum)
	if err != nil {
		return h.failWith(c, err)
	}
	pageSize, err := queryInt(c.QueryParam("pageSize"), "pageSize", defaultPageSize)
	if err != nil {
		return h.failWith(c, err)
	}
	if err := validate(queryMessagesSchema, gojsonschema.NewGoLoader(map[string]interface{}{
		"pageNum":  pageNum,
		"pageSize": pageSize,
	})); err != nil {
		return h.failWith(c, err)
	}

	page, err := h.service.QueryMessages(c.Request().Context(), service.QueryMessagesInput{
		SessionID:      c.Param("sessionId"),
		StartMessageID: c.QueryParam("startMessageId"),
		PageNum:        pageNum,
		PageSize:       pageSize,
	})
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, "query succeeded", page)
}
