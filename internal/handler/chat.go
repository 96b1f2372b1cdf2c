package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/irdop/limschat/internal/model/chat"
	"github.com/irdop/limschat/internal/service/ai"
	"github.com/irdop/limschat/internal/service/backend"
	"github.com/irdop/limschat/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Handler serves the chat endpoints.
type Handler struct {
	store    *backend.Store
	aiSvc    *ai.Service
	model    string
	upgrader websocket.Upgrader
}

// New creates the handler bound to storage and the reply service.
func New(store *backend.Store, aiSvc *ai.Service, model string) *Handler {
	return &Handler{
		store: store,
		aiSvc: aiSvc,
		model: model,
		upgrader: websocket.Upgrader{
			// The development server accepts any origin; it never runs in
			// production.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type contextGetRequest struct {
	ContextID string `json:"contextId"`
	MessageID string `json:"messageId,omitempty"`
}

// handleContextGet serves both the sidebar list (empty body or empty
// contextId) and a single context's branch view.
func (h *Handler) handleContextGet(w http.ResponseWriter, r *http.Request) {
	var req contextGetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ContextID == "" {
		utils.RespondJSON(w, http.StatusOK, h.store.ListContexts(r.Context()))
		return
	}

	ctx, err := h.store.GetContext(r.Context(), req.ContextID, req.MessageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backend.ErrContextNotFound) || errors.Is(err, backend.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctx)
}

type messageGetRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func (h *Handler) handleMessageGet(w http.ResponseWriter, r *http.Request) {
	var req messageGetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.store.GetMessages(r.Context(), req.MessageIDs))
}

// sendRequest is the chat payload, identical over HTTP and WebSocket.
type sendRequest struct {
	Model          string            `json:"model"`
	Message        string            `json:"message"`
	ClassifierCode string            `json:"classifierCode,omitempty"`
	Files          []chat.Attachment `json:"files,omitempty"`
	ContextID      string            `json:"contextId,omitempty"`
	MessageID      string            `json:"messageId,omitempty"`
}

func (h *Handler) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.chatTurn(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backend.ErrContextNotFound) || errors.Is(err, backend.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// inboundEnvelope is the frame the client wraps around WebSocket sends.
type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleChatSocket upgrades the connection and answers chat_message frames
// with the same response shape the HTTP endpoint produces.
func (h *Handler) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var env inboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] read failed: %v", err)
			}
			return
		}

		if env.Type != "chat_message" {
			h.writeSocketError(conn, "unsupported frame type: "+env.Type)
			continue
		}

		var req sendRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.writeSocketError(conn, "invalid chat payload")
			continue
		}
		if req.Message == "" {
			h.writeSocketError(conn, "message is required")
			continue
		}

		resp, err := h.chatTurn(r.Context(), req)
		if err != nil {
			h.writeSocketError(conn, err.Error())
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[ws] write failed: %v", err)
			return
		}
	}
}

func (h *Handler) writeSocketError(conn *websocket.Conn, msg string) {
	if err := conn.WriteJSON(map[string]string{"error": msg}); err != nil {
		log.Printf("[ws] error write failed: %v", err)
	}
}

// turnResponse is the full-payload response shape for one completed turn.
type turnResponse struct {
	Payload turnPayload `json:"payload"`
}

type turnPayload struct {
	Message        turnMessage `json:"message"`
	MessageID      string      `json:"messageId"`
	ContextID      string      `json:"contextId"`
	Model          string      `json:"model,omitempty"`
	ClassifierCode string      `json:"classifierCode,omitempty"`
	CreatedAt      string      `json:"createdAt"`
	PrevMessID     string      `json:"prevMessId,omitempty"`
}

type turnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatTurn runs one complete exchange: resolve the anchored branch history,
// generate a reply, persist both turns, and shape the response.
func (h *Handler) chatTurn(ctx context.Context, req sendRequest) (turnResponse, error) {
	var history []chat.Message
	if req.ContextID != "" {
		view, err := h.store.GetContext(ctx, req.ContextID, req.MessageID)
		if err != nil {
			return turnResponse{}, err
		}
		history = h.store.GetMessages(ctx, view.OrderedMessageIDs())
	}

	reply, err := h.aiSvc.Reply(ctx, history, req.Message)
	if err != nil {
		return turnResponse{}, err
	}

	model := req.Model
	if model == "" {
		model = h.model
	}

	userMsg := chat.Message{
		Content:        req.Message,
		Attachments:    req.Files,
		ClassifierCode: req.ClassifierCode,
	}
	user, bot, err := h.store.AppendTurn(ctx, req.ContextID, req.MessageID, userMsg, reply, model)
	if err != nil {
		return turnResponse{}, err
	}

	return turnResponse{Payload: turnPayload{
		Message:        turnMessage{Role: bot.Role, Content: bot.Content},
		MessageID:      bot.MessageID,
		ContextID:      bot.ContextID,
		Model:          bot.Model,
		ClassifierCode: req.ClassifierCode,
		CreatedAt:      bot.CreatedAt.Format(time.RFC3339Nano),
		PrevMessID:     user.MessageID,
	}}, nil
}

type uploadResponse struct {
	OpaiFileID string          `json:"opaiFileId"`
	OriginInfo chat.OriginInfo `json:"originInfo"`
}

// handleFileUpload accepts a multipart upload and hands back the opaque
// file reference later sends attach to. The development server discards the
// bytes after counting them.
func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	utils.RespondJSON(w, http.StatusOK, uploadResponse{
		OpaiFileID: "opai-" + uuid.NewString(),
		OriginInfo: chat.OriginInfo{
			FileName: header.Filename,
			FileSize: size,
			MimeType: header.Header.Get("Content-Type"),
		},
	})
}
