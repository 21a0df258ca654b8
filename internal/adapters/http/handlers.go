package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/syncplayserver/internal/app"
)

type CreateRoomRequest struct {
	Password         string `json:"password"`
	DriftToleranceMs int    `json:"drift_tolerance_ms" binding:"omitempty,min=0,max=60000"`
}

type CreateRoomResponse struct {
	Room string `json:"room"`
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleListRooms(coord *app.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"rooms":    coord.Rooms.List(),
			"sessions": coord.SessionCount(),
		})
	}
}

func handleCreateRoom(coord *app.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		id, err := coord.CreateRoom(req.Password, time.Duration(req.DriftToleranceMs)*time.Millisecond)
		if err != nil {
			var je *app.JoinError
			if errors.As(err, &je) {
				c.JSON(http.StatusForbidden, gin.H{"error": je.Code})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
			return
		}
		c.JSON(http.StatusCreated, CreateRoomResponse{Room: string(id)})
	}
}
