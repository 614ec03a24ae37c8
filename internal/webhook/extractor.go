package webhook

import (
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// PhoneNormalizer converts a raw provider phone identifier into the
// normalized form used as the natural key. Pluggable so the country
// heuristic is not baked into extraction.
type PhoneNormalizer func(raw string) string

// Extractor flattens provider payloads into normalized inbound events.
type Extractor struct {
	normalize PhoneNormalizer
	maxBatch  int
}

// NewExtractor creates an Extractor. maxBatch bounds the number of events
// produced per payload; zero or negative means the default of 50.
func NewExtractor(normalize PhoneNormalizer, maxBatch int) *Extractor {
	if normalize == nil {
		normalize = func(raw string) string {
			return utils.NormalizePhone(raw, utils.DefaultCountryPrefix)
		}
	}
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &Extractor{normalize: normalize, maxBatch: maxBatch}
}

// Extract walks the envelope and returns zero-to-many normalized events.
// Events missing a phone or a provider message id are dropped, they can
// neither be deduplicated nor routed.
func (e *Extractor) Extract(payload *Payload) []model.InboundEvent {
	events := make([]model.InboundEvent, 0)

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, msg := range value.Messages {
				if len(events) >= e.maxBatch {
					logger.Log.Warn("Webhook payload exceeds batch cap, dropping remainder",
						zap.Int("max_batch", e.maxBatch))
					return events
				}
				ev, ok := e.messageEvent(msg, value.Contacts)
				if !ok {
					continue
				}
				events = append(events, ev)
			}

			for _, st := range value.Statuses {
				if len(events) >= e.maxBatch {
					logger.Log.Warn("Webhook payload exceeds batch cap, dropping remainder",
						zap.Int("max_batch", e.maxBatch))
					return events
				}
				ev, ok := e.statusEvent(st)
				if !ok {
					continue
				}
				events = append(events, ev)
			}
		}
	}

	return events
}

func (e *Extractor) messageEvent(msg ProviderMsg, contacts []Contact) (model.InboundEvent, bool) {
	rawPhone := msg.From
	if rawPhone == "" && len(contacts) > 0 {
		rawPhone = contacts[0].WaID
	}
	phone := e.normalize(rawPhone)
	if phone == "" || msg.ID == "" {
		logger.Log.Debug("Dropping message event without phone or provider message id",
			zap.String("provider_message_id", msg.ID))
		return model.InboundEvent{}, false
	}

	hints := model.ClientHints{Phone: phone}
	if len(contacts) > 0 {
		hints.Name = contacts[0].Profile.Name
	}

	return model.InboundEvent{
		Phone:             phone,
		ProviderMessageID: msg.ID,
		Direction:         model.DirectionInbound,
		Status:            model.StatusInProgress,
		EventTimestamp:    parseProviderTimestamp(msg.Timestamp),
		Payload:           datatypes.JSON(msg.Raw),
		Hints:             hints,
	}, true
}

func (e *Extractor) statusEvent(st DeliveryState) (model.InboundEvent, bool) {
	phone := e.normalize(st.RecipientID)
	if phone == "" || st.ID == "" {
		logger.Log.Debug("Dropping status event without phone or provider message id",
			zap.String("provider_message_id", st.ID))
		return model.InboundEvent{}, false
	}

	return model.InboundEvent{
		Phone:             phone,
		ProviderMessageID: st.ID,
		Direction:         model.DirectionSystem,
		Status:            model.StatusFromProviderDelivery(st.Status),
		EventTimestamp:    parseProviderTimestamp(st.Timestamp),
		Payload:           datatypes.JSON(st.Raw),
	}, true
}

// parseProviderTimestamp parses the provider's unix-seconds string. Falls
// back to now so a malformed timestamp never blocks application.
func parseProviderTimestamp(ts string) time.Time {
	if ts == "" {
		return utils.Now()
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return utils.Now()
	}
	return time.Unix(secs, 0).UTC()
}
