package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chitchat-dev/chitchat/internal/chat"
)

func NewRouter(mgr *chat.Manager) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := &Handler{Mgr: mgr}

	r.GET("/ping", h.Ping)

	r.GET("/chats", h.ListChats)
	r.POST("/chats", h.NewChat)
	r.POST("/chats/:id/activate", h.ActivateChat)
	r.PATCH("/chats/:id", h.RenameChat)
	r.DELETE("/chats/:id", h.DeleteChat)

	r.POST("/context/reset", h.ResetContext)
	r.POST("/generate", h.Generate)

	return r
}
