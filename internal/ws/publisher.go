package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"proxyman/internal/db"
	"proxyman/internal/model"

	"gorm.io/gorm"
)

const certificatesTopic = "certificates"

// Publisher satisfies the lifecycle event sink of the certificate
// service. A zero Publisher is usable.
type Publisher struct{}

// Publish persists and broadcasts a certificate lifecycle event.
// Failures are logged only; an undelivered event never fails the
// operation that produced it.
func (Publisher) Publish(event string, data interface{}) {
	if err := PublishCertificateEvent(event, data); err != nil {
		log.Printf("[WebSocket] Failed to publish %s: %v", event, err)
	}
}

// PublishCertificateEvent writes a lifecycle event to the database and
// broadcasts it to all connected clients. The persisted row carries an
// id that clients use to request incremental replay after a reconnect.
func PublishCertificateEvent(eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := model.WSEvent{
		Topic:     certificatesTopic,
		EventType: eventType,
		Payload:   string(payloadJSON),
	}
	if err := db.GetDB().Create(&event).Error; err != nil {
		return fmt.Errorf("failed to write event to database: %w", err)
	}

	// Broadcast failure cannot happen here; a client that misses the
	// push catches up through replay.
	BroadcastToAll("certificates:update", map[string]interface{}{
		"eventId": event.ID,
		"type":    eventType,
		"data":    payload,
	})
	return nil
}

// GetIncrementalEvents returns certificate events with id > lastEventID,
// limited to maxCount.
func GetIncrementalEvents(lastEventID int64, maxCount int) ([]model.WSEvent, error) {
	var events []model.WSEvent
	err := db.GetDB().
		Where("topic = ? AND id > ?", certificatesTopic, lastEventID).
		Order("id ASC").
		Limit(maxCount).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incremental events: %w", err)
	}
	return events, nil
}

// GetLatestEventID returns the id of the newest certificate event, 0
// when none exist.
func GetLatestEventID() (int64, error) {
	var event model.WSEvent
	err := db.GetDB().
		Where("topic = ?", certificatesTopic).
		Order("id DESC").
		Limit(1).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query latest event: %w", err)
	}
	return event.ID, nil
}
