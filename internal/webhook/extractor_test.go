package webhook

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

func newTestExtractor(t *testing.T, maxBatch int) *Extractor {
	logger.Log = zaptest.NewLogger(t).Named("test")
	return NewExtractor(nil, maxBatch)
}

func parsePayload(t *testing.T, raw string) *Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestExtract_InboundMessage(t *testing.T) {
	ex := newTestExtractor(t, 0)
	p := parsePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"display_phone_number": "5511888887777"},
					"contacts": [{"wa_id": "5511999998888", "profile": {"name": "Maria Silva"}}],
					"messages": [{
						"id": "wamid.ABC",
						"from": "5511999998888",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": "oi"}
					}]
				}
			}]
		}]
	}`)

	events := ex.Extract(p)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "+5511999998888", ev.Phone)
	assert.Equal(t, "wamid.ABC", ev.ProviderMessageID)
	assert.Equal(t, model.DirectionInbound, ev.Direction)
	assert.Equal(t, model.StatusInProgress, ev.Status)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.EventTimestamp)
	assert.Equal(t, "Maria Silva", ev.Hints.Name)
	assert.Contains(t, string(ev.Payload), "wamid.ABC")
}

func TestExtract_MessagePhoneFallsBackToContact(t *testing.T) {
	ex := newTestExtractor(t, 0)
	p := parsePayload(t, `{
		"entry": [{"changes": [{"value": {
			"contacts": [{"wa_id": "5511999998888", "profile": {"name": "Maria"}}],
			"messages": [{"id": "wamid.NOFROM", "timestamp": "1700000000", "type": "text"}]
		}}]}]
	}`)

	events := ex.Extract(p)
	require.Len(t, events, 1)
	assert.Equal(t, "+5511999998888", events[0].Phone)
}

func TestExtract_DeliveryStatuses(t *testing.T) {
	ex := newTestExtractor(t, 0)
	p := parsePayload(t, `{
		"entry": [{"changes": [{"value": {
			"statuses": [
				{"id": "wamid.S1", "status": "read", "timestamp": "1700000100", "recipient_id": "5511999998888"},
				{"id": "wamid.S2", "status": "failed", "timestamp": "1700000200", "recipient_id": "5511999998888"},
				{"id": "wamid.S3", "status": "queued", "timestamp": "1700000300", "recipient_id": "5511999998888"}
			]
		}}]}]
	}`)

	events := ex.Extract(p)
	require.Len(t, events, 3)

	for _, ev := range events {
		assert.Equal(t, model.DirectionSystem, ev.Direction)
		assert.Equal(t, "+5511999998888", ev.Phone)
	}
	assert.Equal(t, model.StatusAwaitingClient, events[0].Status)
	assert.Equal(t, model.StatusFailed, events[1].Status)
	assert.Equal(t, model.StatusInProgress, events[2].Status)
}

func TestExtract_DropsEventsMissingKeys(t *testing.T) {
	ex := newTestExtractor(t, 0)
	p := parsePayload(t, `{
		"entry": [{"changes": [{"value": {
			"messages": [
				{"id": "", "from": "5511999998888", "timestamp": "1700000000"},
				{"id": "wamid.NOPHONE", "from": "", "timestamp": "1700000000"}
			],
			"statuses": [
				{"id": "wamid.OK", "status": "read", "timestamp": "1700000000", "recipient_id": ""}
			]
		}}]}]
	}`)

	events := ex.Extract(p)
	assert.Empty(t, events)
}

func TestExtract_BatchCap(t *testing.T) {
	ex := newTestExtractor(t, 5)

	var msgs []string
	for i := 0; i < 10; i++ {
		msgs = append(msgs, fmt.Sprintf(
			`{"id": "wamid.%d", "from": "5511999998888", "timestamp": "1700000000", "type": "text"}`, i))
	}
	raw := `{"entry": [{"changes": [{"value": {"messages": [` + msgs[0]
	for _, m := range msgs[1:] {
		raw += "," + m
	}
	raw += `]}}]}]}`

	events := ex.Extract(parsePayload(t, raw))
	assert.Len(t, events, 5)
}

func TestExtract_MalformedTimestampFallsBackToNow(t *testing.T) {
	ex := newTestExtractor(t, 0)
	p := parsePayload(t, `{
		"entry": [{"changes": [{"value": {
			"messages": [{"id": "wamid.TS", "from": "5511999998888", "timestamp": "not-a-number"}]
		}}]}]
	}`)

	before := time.Now().UTC().Add(-time.Minute)
	events := ex.Extract(p)
	require.Len(t, events, 1)
	assert.True(t, events[0].EventTimestamp.After(before))
}
