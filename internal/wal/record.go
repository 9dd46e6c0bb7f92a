// Package wal implements the write-ahead log: newline-delimited,
// self-describing text records, group commit, and the three durability
// modes of spec.md §4.2.
package wal

import (
	"encoding/json"

	"github.com/edgevdb/core/internal/collection"
)

// RecordType tags the WAL record union of spec.md §3.
type RecordType string

const (
	CreateCollection RecordType = "create_collection"
	DeleteCollection RecordType = "delete_collection"
	UpsertPoint      RecordType = "upsert_point"
	DeletePoint      RecordType = "delete_point"
	SetPayload       RecordType = "set_payload"
	DeletePayload    RecordType = "delete_payload"

	// SnapshotHeader opens a snapshot file (internal/snapshot): one per
	// file, carrying the generation the snapshot was taken at.
	SnapshotHeader RecordType = "snapshot_header"
)

// PayloadField is the wire shape of a collection.PayloadValue: exactly one
// of the typed fields is set, selected by Kind.
type PayloadField struct {
	Kind string   `json:"kind"`
	Str  string   `json:"str,omitempty"`
	Int  int64    `json:"int,omitempty"`
	Flt  float64  `json:"flt,omitempty"`
	Bool bool     `json:"bool,omitempty"`
}

func fromPayloadValue(v collection.PayloadValue) PayloadField {
	switch v.Kind {
	case collection.PayloadString:
		return PayloadField{Kind: "string", Str: v.Str}
	case collection.PayloadInt:
		return PayloadField{Kind: "int", Int: v.Int}
	case collection.PayloadFloat:
		return PayloadField{Kind: "float", Flt: v.Flt}
	case collection.PayloadBool:
		return PayloadField{Kind: "bool", Bool: v.Bool}
	default:
		return PayloadField{Kind: "string"}
	}
}

func (f PayloadField) toPayloadValue() collection.PayloadValue {
	switch f.Kind {
	case "int":
		return collection.IntValue(f.Int)
	case "float":
		return collection.FloatValue(f.Flt)
	case "bool":
		return collection.BoolValue(f.Bool)
	default:
		return collection.StringValue(f.Str)
	}
}

func payloadToWire(p map[string]collection.PayloadValue) map[string]PayloadField {
	if p == nil {
		return nil
	}
	out := make(map[string]PayloadField, len(p))
	for k, v := range p {
		out[k] = fromPayloadValue(v)
	}
	return out
}

func payloadFromWire(p map[string]PayloadField) map[string]collection.PayloadValue {
	if p == nil {
		return nil
	}
	out := make(map[string]collection.PayloadValue, len(p))
	for k, v := range p {
		out[k] = v.toPayloadValue()
	}
	return out
}

// Record is the self-describing, order-significant WAL entry. Only the
// fields relevant to Type are populated; json omits the rest.
type Record struct {
	Type RecordType `json:"type"`

	Collection string `json:"collection,omitempty"`
	Dimension  int    `json:"dimension,omitempty"`
	Strict     bool   `json:"strict,omitempty"`

	ID      uint64                  `json:"id,omitempty"`
	Values  []float32               `json:"values,omitempty"`
	Payload map[string]PayloadField `json:"payload,omitempty"`

	IDs    []uint64                 `json:"ids,omitempty"`
	Fields map[string]PayloadField  `json:"fields,omitempty"`
	Keys   []string                 `json:"keys,omitempty"`

	Generation uint64 `json:"generation,omitempty"`
}

// NewSnapshotHeader builds the leading record of a snapshot file.
func NewSnapshotHeader(generation uint64) Record {
	return Record{Type: SnapshotHeader, Generation: generation}
}

// NewCreateCollection builds a CreateCollection record.
func NewCreateCollection(name string, dimension int, strictFinite bool) Record {
	return Record{Type: CreateCollection, Collection: name, Dimension: dimension, Strict: strictFinite}
}

// NewDeleteCollection builds a DeleteCollection record.
func NewDeleteCollection(name string) Record {
	return Record{Type: DeleteCollection, Collection: name}
}

// NewUpsertPoint builds an UpsertPoint record.
func NewUpsertPoint(collName string, id uint64, values []float32, payload map[string]collection.PayloadValue) Record {
	return Record{Type: UpsertPoint, Collection: collName, ID: id, Values: values, Payload: payloadToWire(payload)}
}

// NewDeletePoint builds a DeletePoint record.
func NewDeletePoint(collName string, id uint64) Record {
	return Record{Type: DeletePoint, Collection: collName, ID: id}
}

// NewSetPayload builds a SetPayload record.
func NewSetPayload(collName string, ids []uint64, fields map[string]collection.PayloadValue) Record {
	return Record{Type: SetPayload, Collection: collName, IDs: ids, Fields: payloadToWire(fields)}
}

// NewDeletePayload builds a DeletePayload record.
func NewDeletePayload(collName string, ids []uint64, keys []string) Record {
	return Record{Type: DeletePayload, Collection: collName, IDs: ids, Keys: keys}
}

// PayloadValues decodes the wire payload back into collection.PayloadValue.
func (r Record) PayloadValues() map[string]collection.PayloadValue {
	return payloadFromWire(r.Payload)
}

// FieldValues decodes the wire fields back into collection.PayloadValue.
func (r Record) FieldValues() map[string]collection.PayloadValue {
	return payloadFromWire(r.Fields)
}

func (r Record) marshal() ([]byte, error) {
	return json.Marshal(r)
}

func unmarshalRecord(line []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(line, &r)
	return r, err
}

// Marshal encodes r as one JSON line, exported for internal/snapshot's
// segment and snapshot files, which share the WAL's record format.
func (r Record) Marshal() ([]byte, error) {
	return r.marshal()
}

// UnmarshalRecord decodes a single JSON line into a Record.
func UnmarshalRecord(line []byte) (Record, error) {
	return unmarshalRecord(line)
}
