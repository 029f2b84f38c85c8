package clients

import (
	"context"
	"fmt"

	ws "vereinskasse/internal/transport/websocket"
)

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

// NotifyRemindersChanged tells every open session that the member's
// reminders changed so that panels and dashboards re-fetch. The message
// carries no reminder data.
func (c *WebSocketClient) NotifyRemindersChanged(ctx context.Context, memberID int64, action string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.BroadcastAll(&ws.Message{
		Type:    ws.TypeRemindersChanged,
		Channel: fmt.Sprintf("members.%d.reminders", memberID),
		Data: map[string]interface{}{
			"member_id": memberID,
			"action":    action,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportProgress(
	ctx context.Context,
	userID int64,
	exportID string,
	progress float64,
	stage string,
) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]interface{}{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    ws.TypeExportProgress,
		Channel: fmt.Sprintf("users.%d.exports", userID),
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(
	ctx context.Context,
	userID int64,
	exportID string,
	url string,
	filename string,
) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    ws.TypeExportComplete,
		Channel: fmt.Sprintf("users.%d.exports", userID),
		Data: map[string]interface{}{
			"id":       exportID,
			"url":      url,
			"filename": filename,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    ws.TypeExportFailed,
		Channel: fmt.Sprintf("users.%d.exports", userID),
		Data: map[string]interface{}{
			"id":      exportID,
			"message": errMsg,
		},
	})
	return nil
}
