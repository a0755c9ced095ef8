package sync

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEnvelope(t *testing.T, payload string) []byte {
	t.Helper()
	data := base64.StdEncoding.EncodeToString([]byte(payload))
	return []byte(fmt.Sprintf(`{"message": {"data": %q, "messageId": "42"}, "subscription": "projects/p/subscriptions/s"}`, data))
}

func TestDecodeNotification(t *testing.T) {
	t.Run("decodes numeric history id", func(t *testing.T) {
		body := encodeEnvelope(t, `{"emailAddress": "user@example.com", "historyId": 12345}`)

		note := DecodeNotification(body)
		require.NotNil(t, note)
		assert.Equal(t, "user@example.com", note.EmailAddress)
		assert.Equal(t, uint64(12345), note.HistoryID)
	})

	t.Run("decodes quoted history id", func(t *testing.T) {
		body := encodeEnvelope(t, `{"emailAddress": "user@example.com", "historyId": "98765"}`)

		note := DecodeNotification(body)
		require.NotNil(t, note)
		assert.Equal(t, uint64(98765), note.HistoryID)
	})

	t.Run("verification ping without data is nil", func(t *testing.T) {
		body := []byte(`{"message": {"messageId": "42"}, "subscription": "projects/p/subscriptions/s"}`)
		assert.Nil(t, DecodeNotification(body))
	})

	t.Run("malformed JSON is nil", func(t *testing.T) {
		assert.Nil(t, DecodeNotification([]byte(`{not json`)))
	})

	t.Run("data that is not base64 is nil", func(t *testing.T) {
		body := []byte(`{"message": {"data": "%%%not-base64%%%", "messageId": "42"}}`)
		assert.Nil(t, DecodeNotification(body))
	})

	t.Run("data that is not a change record is nil", func(t *testing.T) {
		body := encodeEnvelope(t, `"just a string"`)
		assert.Nil(t, DecodeNotification(body))
	})

	t.Run("missing history id is nil", func(t *testing.T) {
		body := encodeEnvelope(t, `{"emailAddress": "user@example.com"}`)
		assert.Nil(t, DecodeNotification(body))
	})

	t.Run("zero history id is nil", func(t *testing.T) {
		body := encodeEnvelope(t, `{"emailAddress": "user@example.com", "historyId": 0}`)
		assert.Nil(t, DecodeNotification(body))
	})
}
