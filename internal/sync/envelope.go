package sync

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
)

// pushEnvelope is the Pub/Sub push delivery wrapper
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the decoded Gmail change record carried in a push
type Notification struct {
	EmailAddress string
	HistoryID    uint64
}

// DecodeNotification extracts the change record from a raw push body.
// Returns nil for verification pings and malformed bodies; deliveries
// are acked either way, so callers treat nil as a no-op.
func DecodeNotification(body []byte) *Notification {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.Message.Data == "" {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil
	}

	// Gmail documents historyId as a number but some relays quote it
	var record struct {
		EmailAddress string      `json:"emailAddress"`
		HistoryID    json.Number `json:"historyId"`
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}

	id, err := strconv.ParseUint(record.HistoryID.String(), 10, 64)
	if err != nil || id == 0 {
		return nil
	}

	return &Notification{EmailAddress: record.EmailAddress, HistoryID: id}
}
