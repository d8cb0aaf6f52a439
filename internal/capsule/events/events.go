// Package events defines the notifications emitted by capsule lifecycle
// operations and the envelope they travel in.
//
// Events are appended inside the same ledger transaction as the mutation they
// describe and are never read back by the capsule service.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"timevault/internal/capsule/address"
	id "timevault/pkg/domain"
	"timevault/pkg/requestcontext"
)

// Type names an event on the wire.
type Type string

const (
	TypeCapsuleCreated      Type = "capsule.created"
	TypeCapsuleUpdated      Type = "capsule.updated"
	TypeCapsuleUnlocked     Type = "capsule.unlocked"
	TypeCapsuleTransferred  Type = "capsule.transferred"
	TypeCapsuleClosed       Type = "capsule.closed"
	TypeCapsuleMintAttached Type = "capsule.mint_attached"
	TypeRegistryInitialized Type = "registry.initialized"
)

// Event is a payload that can be wrapped in an Envelope.
type Event interface {
	EventType() Type
}

// Timestamps inside payloads are unix seconds, matching the ledger clock.

type CapsuleCreated struct {
	Capsule    address.Address `json:"capsule"`
	Creator    id.Identity     `json:"creator"`
	Title      string          `json:"title"`
	UnlockDate int64           `json:"unlock_date"`
	Timestamp  int64           `json:"timestamp"`
}

type CapsuleUpdated struct {
	Capsule        address.Address `json:"capsule"`
	Updater        id.Identity     `json:"updater"`
	NewUnlockDate  *int64          `json:"new_unlock_date,omitempty"`
	ContentUpdated bool            `json:"content_updated"`
	URLUpdated     bool            `json:"url_updated"`
	Timestamp      int64           `json:"timestamp"`
}

type CapsuleUnlocked struct {
	Capsule   address.Address `json:"capsule"`
	Unlocker  id.Identity     `json:"unlocker"`
	Timestamp int64           `json:"timestamp"`
}

type CapsuleTransferred struct {
	Capsule   address.Address `json:"capsule"`
	From      id.Identity     `json:"from"`
	To        id.Identity     `json:"to"`
	Mint      *id.Identity    `json:"mint,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type CapsuleClosed struct {
	Capsule   address.Address `json:"capsule"`
	Closer    id.Identity     `json:"closer"`
	Timestamp int64           `json:"timestamp"`
}

type CapsuleMintAttached struct {
	Capsule   address.Address `json:"capsule"`
	Mint      id.Identity     `json:"mint"`
	Creator   id.Identity     `json:"creator"`
	Timestamp int64           `json:"timestamp"`
}

type RegistryInitialized struct {
	Authority id.Identity `json:"authority"`
	Version   uint8       `json:"version"`
	Timestamp int64       `json:"timestamp"`
}

func (CapsuleCreated) EventType() Type      { return TypeCapsuleCreated }
func (CapsuleUpdated) EventType() Type      { return TypeCapsuleUpdated }
func (CapsuleUnlocked) EventType() Type     { return TypeCapsuleUnlocked }
func (CapsuleTransferred) EventType() Type  { return TypeCapsuleTransferred }
func (CapsuleClosed) EventType() Type       { return TypeCapsuleClosed }
func (CapsuleMintAttached) EventType() Type { return TypeCapsuleMintAttached }
func (RegistryInitialized) EventType() Type { return TypeRegistryInitialized }

// Envelope wraps an event with delivery metadata. Address is the partition key
// downstream; registry events carry the zero address.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	Address    address.Address `json:"address"`
	RequestID  string          `json:"request_id,omitempty"`
	Client     string          `json:"client,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap builds an envelope for ev using the request metadata carried by ctx.
func Wrap(ctx context.Context, addr address.Address, ev Event, at time.Time) (Envelope, error) {
	return wrap(uuid.New(), requestcontext.RequestID(ctx), requestcontext.Client(ctx), addr, ev, at)
}

func wrap(eventID uuid.UUID, requestID, client string, addr address.Address, ev Event, at time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", ev.EventType(), err)
	}
	return Envelope{
		ID:         eventID,
		Type:       ev.EventType(),
		Address:    addr,
		RequestID:  requestID,
		Client:     client,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}, nil
}

// Key is the partition key used by brokers and streams.
func (e Envelope) Key() string {
	return e.Address.String()
}

// Encode renders the envelope as its wire JSON.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses wire JSON produced by Encode.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// Unix converts a ledger time to the unix-second representation used in payloads.
func Unix(t time.Time) int64 {
	return t.Unix()
}

// OutboxEntry is a committed envelope awaiting delivery. Seq orders entries
// within one outbox.
type OutboxEntry struct {
	Seq  int64
	ID   uuid.UUID
	Type Type
	Key  string
	Body []byte
}
