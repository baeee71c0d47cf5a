package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/engine"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
)

// handleGetStatus returns the station status
func (d *Daemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, d.coordinator.Status())
}

// handleGetBands returns the band table
func (d *Daemon) handleGetBands(c *gin.Context) {
	entries := d.coordinator.Table().Entries()
	bands := make([]protocol.Band, 0, len(entries))
	for _, e := range entries {
		bands = append(bands, engine.BandFromEntry(e))
	}

	c.JSON(http.StatusOK, gin.H{
		"bands": bands,
		"count": len(bands),
	})
}

// handleGetHistory returns recent band changes
func (d *Daemon) handleGetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	var changes []protocol.ChangeRecord
	if d.store != nil {
		changes, err = d.store.Recent(limit)
	} else {
		changes, err = d.coordinator.Recent(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}

// handleGetStats returns change statistics plus the live counters
func (d *Daemon) handleGetStats(c *gin.Context) {
	status := d.coordinator.Status()
	counters := gin.H{
		"changes":      status.Changes,
		"failures":     status.Failures,
		"table_misses": status.TableMisses,
		"superseded":   status.Superseded,
		"reconnects":   status.Reconnects,
	}

	if d.store == nil {
		c.JSON(http.StatusOK, gin.H{"counters": counters})
		return
	}

	stats, err := d.store.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"counters": counters,
		"history":  stats,
	})
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStatusWebSocket pushes a status snapshot on connect and after every change
func (d *Daemon) handleStatusWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("web", "websocket upgrade failed", logging.Fields{"error": err})
		return
	}
	defer conn.Close()

	updates := d.coordinator.Subscribe()
	defer d.coordinator.Unsubscribe(updates)

	logging.Debug("web", "status websocket client connected", logging.Fields{"remote": conn.RemoteAddr().String()})

	// Clients only listen; a read error means they went away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(d.coordinator.Status()); err != nil {
		return
	}

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				logging.Debug("web", "websocket write error", logging.Fields{"error": err})
				return
			}

		case <-closed:
			return

		case <-d.ctx.Done():
			return
		}
	}
}
