package ws

import (
	"encoding/json"
	"log"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"proxyman/internal/db"
	"proxyman/internal/model"
)

// CertificateListItem is the wire shape of one certificate row in the
// initial snapshot.
type CertificateListItem struct {
	ID          int     `json:"id"`
	ProxyHostID int     `json:"proxy_host_id"`
	Domain      string  `json:"domain"`
	Status      string  `json:"status"`
	ExpiresAt   string  `json:"expires_at"`
	LastError   *string `json:"last_error,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// handleRequestCertificates handles the request:certificates event.
// A client with a lastEventId gets incremental replay; otherwise, or
// when replay is not possible, it gets a full snapshot.
func handleRequestCertificates(s socketio.Conn, data interface{}) {
	log.Printf("[WebSocket] request:certificates from client %s, data: %v", s.ID(), data)

	var lastEventID int64
	if dataMap, ok := data.(map[string]interface{}); ok {
		if v, ok := dataMap["lastEventId"].(float64); ok {
			lastEventID = int64(v)
		}
	}

	if lastEventID > 0 {
		if sendIncrementalUpdates(s, lastEventID) {
			return
		}
		log.Printf("[WebSocket] Incremental updates failed, falling back to full list")
	}

	sendFullCertificateList(s)
}

// sendIncrementalUpdates replays missed events to the client. Returns
// false when the client should receive a full snapshot instead.
func sendIncrementalUpdates(s socketio.Conn, lastEventID int64) bool {
	maxCount := 500
	events, err := GetIncrementalEvents(lastEventID, maxCount)
	if err != nil {
		log.Printf("[WebSocket] Failed to query incremental events: %v", err)
		return false
	}

	// Too large a gap, cheaper to resend everything
	if len(events) >= maxCount {
		log.Printf("[WebSocket] Too many incremental events (%d), falling back to full list", len(events))
		return false
	}

	if len(events) == 0 {
		latestEventID, _ := GetLatestEventID()
		s.Emit("certificates:initial", map[string]interface{}{
			"items":       []interface{}{},
			"total":       0,
			"lastEventId": latestEventID,
		})
		return true
	}

	log.Printf("[WebSocket] Sending %d incremental events", len(events))
	for _, event := range events {
		var payload interface{}
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			log.Printf("[WebSocket] Failed to unmarshal event payload: %v", err)
			continue
		}
		s.Emit("certificates:update", map[string]interface{}{
			"eventId": event.ID,
			"type":    event.EventType,
			"data":    payload,
		})
	}
	return true
}

// sendFullCertificateList sends a full certificate snapshot to the client
func sendFullCertificateList(s socketio.Conn) {
	var certs []model.Certificate
	if err := db.GetDB().Order("id ASC").Limit(10000).Find(&certs).Error; err != nil {
		log.Printf("[WebSocket] Failed to query certificates: %v", err)
		s.Emit("error", map[string]interface{}{
			"message": "Failed to query certificates",
		})
		return
	}

	items := make([]CertificateListItem, 0, len(certs))
	for _, cert := range certs {
		items = append(items, CertificateListItem{
			ID:          cert.ID,
			ProxyHostID: cert.ProxyHostID,
			Domain:      cert.Domain,
			Status:      cert.Status,
			ExpiresAt:   cert.ExpiresAt.UTC().Format(time.RFC3339),
			LastError:   cert.LastError,
			CreatedAt:   cert.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	latestEventID, _ := GetLatestEventID()
	s.Emit("certificates:initial", map[string]interface{}{
		"items":       items,
		"total":       len(items),
		"lastEventId": latestEventID,
	})

	log.Printf("[WebSocket] Sent full certificate list: total=%d, lastEventId=%d", len(items), latestEventID)
}
