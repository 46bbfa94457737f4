package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"local-chat/internal/domain"
	"local-chat/internal/usecase"
)

const messagesPath = "/messages"

// ChatController is the part of usecase.ChatService exposed over HTTP.
type ChatController interface {
	SendMessage(ctx context.Context, input string) error
	LoadHistory(ctx context.Context) error
	ClearAll(ctx context.Context) error
	State() domain.State
}

type Handler struct {
	chat     ChatController
	validate *validator.Validate
	log      *slog.Logger
}

type sendRequest struct {
	Text string `json:"text" validate:"max=32000"`
}

type stateResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	Loading  bool                 `json:"loading"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewHandler(chat ChatController, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat controller must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, validate: validator.New(), log: logger}, nil
}

// Handle routes API Gateway proxy events onto the chat controller.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := uuid.NewString()
	log := h.log.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	if strings.TrimRight(req.Path, "/") != messagesPath {
		return h.respond(correlationID, http.StatusNotFound, errorResponse{Error: "NOT_FOUND"}), nil
	}

	var err error
	switch req.HTTPMethod {
	case http.MethodGet:
		err = h.chat.LoadHistory(ctx)
	case http.MethodPost:
		var body sendRequest
		if decErr := json.Unmarshal([]byte(req.Body), &body); decErr != nil {
			log.Info("rejected request body", "err", decErr)
			return h.errorResponse(correlationID, usecase.ErrorInvalidInput, "request body must be JSON"), nil
		}
		if valErr := h.validate.Struct(body); valErr != nil {
			log.Info("rejected request body", "err", valErr)
			return h.errorResponse(correlationID, usecase.ErrorInvalidInput, "text is too long"), nil
		}
		err = h.chat.SendMessage(ctx, body.Text)
	case http.MethodDelete:
		err = h.chat.ClearAll(ctx)
	default:
		return h.respond(correlationID, http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"}), nil
	}

	if err != nil {
		code := usecase.CodeOf(err)
		if code == "" {
			code = usecase.ErrorInternal
		}
		log.Warn("chat request failed", "code", code, "err", err)
		return h.errorResponse(correlationID, code, err.Error()), nil
	}

	st := h.chat.State()
	msgs := st.Messages
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return h.respond(correlationID, http.StatusOK, stateResponse{Messages: msgs, Loading: st.Loading}), nil
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorBusy:
		return http.StatusConflict
	case usecase.ErrorServer, usecase.ErrorNetwork, usecase.ErrorDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) errorResponse(correlationID string, code usecase.ErrorCode, msg string) events.APIGatewayProxyResponse {
	return h.respond(correlationID, statusFor(code), errorResponse{Error: string(code), Message: msg})
}

func (h *Handler) respond(correlationID string, status int, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		h.log.Error("encode response", "err", err)
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": correlationID,
		},
		Body: string(raw),
	}
}
