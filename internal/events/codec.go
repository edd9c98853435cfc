// Package events streams committed ledger effects through Kafka. The Relay
// publishes receipts in height order and the Handler feeds them back into
// the index projector on the consuming side. Delivery is at least once; the
// projector is idempotent.
package events

import (
	"encoding/json"
	"time"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// Header names set on every record.
const (
	HeaderEffectKind = "effect_kind"
	HeaderTxID       = "tx_id"
)

// Message is the wire form of one effect of one committed receipt.
type Message struct {
	TxID      id.TxID                `json:"tx_id"`
	Height    uint64                 `json:"height"`
	Timestamp time.Time              `json:"timestamp"`
	Caller    id.Address             `json:"caller"`
	Kind      certificate.EffectKind `json:"kind"`
	Payload   json.RawMessage        `json:"payload"`
}

// FromReceipt splits receipt into one message per effect, in effect order.
func FromReceipt(receipt certificate.Receipt) []Message {
	out := make([]Message, 0, len(receipt.Effects))
	for _, effect := range receipt.Effects {
		out = append(out, Message{
			TxID:      receipt.TxID,
			Height:    receipt.Height,
			Timestamp: receipt.Timestamp,
			Caller:    receipt.Caller,
			Kind:      effect.Kind,
			Payload:   effect.Payload,
		})
	}
	return out
}

// Key partitions messages by certificate so one certificate's effects stay
// ordered. Payloads without a certificate id fall back to the transaction id.
func (m Message) Key() string {
	var ref struct {
		CertificateID string `json:"certificate_id"`
	}
	if err := json.Unmarshal(m.Payload, &ref); err == nil && ref.CertificateID != "" {
		return ref.CertificateID
	}
	return m.TxID.String()
}

// Receipt rebuilds a single-effect receipt the projector can apply.
func (m Message) Receipt() certificate.Receipt {
	return certificate.Receipt{
		TxID:      m.TxID,
		Height:    m.Height,
		Timestamp: m.Timestamp,
		Caller:    m.Caller,
		Effects:   []certificate.Effect{{Kind: m.Kind, Payload: m.Payload}},
	}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a record value. Malformed values fail with CodeDecode.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, dErrors.Wrap(err, dErrors.CodeDecode, "malformed effect message")
	}
	if m.Kind == "" || m.Height == 0 {
		return Message{}, dErrors.New(dErrors.CodeDecode, "effect message is missing kind or height")
	}
	return m, nil
}
