package webhook

import "encoding/json"

// Payload is the provider's webhook envelope: entries wrap changes, changes
// wrap values, values carry messages and/or delivery statuses.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level entry in the envelope.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field-level change inside an entry.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the actual messages, statuses, and contact profiles.
type Value struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         ValueMetadata   `json:"metadata"`
	Contacts         []Contact       `json:"contacts"`
	Messages         []ProviderMsg   `json:"messages"`
	Statuses         []DeliveryState `json:"statuses"`
}

// ValueMetadata identifies the receiving phone number.
type ValueMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is a sender profile entry accompanying inbound messages.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// ProviderMsg is one inbound message. The full object is preserved as the
// payload snapshot, so unknown fields are captured via raw JSON.
type ProviderMsg struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Text      json.RawMessage `json:"text,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw message object alongside the parsed fields.
func (m *ProviderMsg) UnmarshalJSON(data []byte) error {
	type alias ProviderMsg
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = ProviderMsg(a)
	m.Raw = append([]byte(nil), data...)
	return nil
}

// DeliveryState is one delivery-status callback.
type DeliveryState struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Raw         json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw status object alongside the parsed fields.
func (s *DeliveryState) UnmarshalJSON(data []byte) error {
	type alias DeliveryState
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = DeliveryState(a)
	s.Raw = append([]byte(nil), data...)
	return nil
}
