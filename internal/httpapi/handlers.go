package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/chitchat-dev/chitchat/internal/chat"
)

type Handler struct {
	Mgr *chat.Manager
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, 10002, "invalid chat id")
		return 0, false
	}
	return id, true
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}

func (h *Handler) ListChats(c *gin.Context) {
	titles, err := h.Mgr.ListChats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "failed to list chats")
		return
	}
	ok(c, gin.H{"chats": titles})
}

type newChatReq struct {
	SystemMessage string `json:"system_message"`
	Title         string `json:"title"`
}

func (h *Handler) NewChat(c *gin.Context) {
	var req newChatReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	s := h.Mgr.NewSession(req.SystemMessage, req.Title)
	ok(c, gin.H{
		"title":        s.Title(),
		"date_started": s.DateStarted(),
	})
}

func (h *Handler) ActivateChat(c *gin.Context) {
	id, okk := chatIDParam(c)
	if !okk {
		return
	}
	if err := h.Mgr.SetActive(id); err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"active": id})
}

type renameChatReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameChat(c *gin.Context) {
	id, okk := chatIDParam(c)
	if !okk {
		return
	}
	var req renameChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Mgr.Rename(c.Request.Context(), id, req.Title); err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "failed to rename chat")
		return
	}
	ok(c, gin.H{"id": id, "title": req.Title})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	id, okk := chatIDParam(c)
	if !okk {
		return
	}
	if err := h.Mgr.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "failed to delete chat")
		return
	}
	ok(c, gin.H{"deleted": id})
}

func (h *Handler) ResetContext(c *gin.Context) {
	h.Mgr.ActiveSession().ResetContext()
	ok(c, gin.H{"reset": true})
}

type generateReq struct {
	Prompt string `json:"prompt" binding:"required"`
}

// Generate streams one completion for the active session as SSE events:
// waiting, chunk, saved, done, error.
func (h *Handler) Generate(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		fail(c, http.StatusInternalServerError, 50003, "streaming not supported")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	l := &sseListener{w: c.Writer, flusher: flusher}

	err := h.Mgr.Generate(c.Request.Context(), req.Prompt, l)
	if errors.Is(err, chat.ErrAlreadyGenerating) {
		// The manager rejects before emitting anything, so this is the
		// first and only event on the stream.
		l.write("error", gin.H{"type": "error", "message": "a generation is already in flight"})
	}
}

// sseListener forwards manager events onto an SSE stream. The waiting ticker
// runs on its own goroutine, so writes are serialized with a mutex.
type sseListener struct {
	mu      sync.Mutex
	w       gin.ResponseWriter
	flusher http.Flusher
}

func (l *sseListener) write(event string, payload any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(l.w, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
		l.flusher.Flush()
		return
	}
	if event != "" {
		fmt.Fprintf(l.w, "event: %s\n", event)
	}
	fmt.Fprintf(l.w, "data: %s\n\n", string(b))
	l.flusher.Flush()
}

func (l *sseListener) OnWaiting() {
	l.write("waiting", gin.H{"type": "waiting"})
}

func (l *sseListener) OnFragment(delta string) {
	l.write("chunk", gin.H{"type": "chunk", "delta": delta})
}

func (l *sseListener) OnChatSaved(id int64, title string) {
	l.write("saved", gin.H{"type": "saved", "chat_id": id, "title": title})
}

func (l *sseListener) OnDone(response string) {
	l.write("done", gin.H{"type": "done", "response": response})
}

func (l *sseListener) OnError(err error) {
	l.write("error", gin.H{"type": "error", "message": err.Error()})
}
