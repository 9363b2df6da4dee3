package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/blang/semver/v4"
	"github.com/consensys/mathprog"
	"github.com/consensys/mathprog/internal/ioutils"
	"github.com/consensys/mathprog/logger"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
)

// FamilyMessage is the serialized form of one atomic constraint family.
// Entries hold family payloads; the family's descriptor must be registered
// (RegisterFamily) in the decoding process before FromMessage is called.
type FamilyMessage struct {
	Name       string
	Next       uint32
	Tombstones []uint32       `cbor:",omitempty"`
	Entries    []AtomicRecord `cbor:",omitempty"`
}

// ModelMessage is the serialized form of a full model. Tombstone sets travel
// in a separate compressed binary section and are excluded from the CBOR body.
type ModelMessage struct {
	MathprogVersion string
	Name            string `cbor:",omitempty"`

	NextVariableID   uint32
	NextConstraintID uint32

	Variables   []VariableRecord
	Constraints []ConstraintRecord
	Objective   Objective
	Families    []FamilyMessage `cbor:",omitempty"`

	VariableTombstones   []uint32 `cbor:"-"`
	ConstraintTombstones []uint32 `cbor:"-"`
}

// ToMessage snapshots the model into its serialized form. The message shares
// no storage with the model.
func (m *Model) ToMessage() ModelMessage {
	msg := ModelMessage{
		MathprogVersion:      mathprog.Version.String(),
		Name:                 m.name,
		NextVariableID:       m.vars.reg.bound(),
		NextConstraintID:     m.cons.reg.bound(),
		Variables:            make([]VariableRecord, 0, m.vars.reg.count()),
		Constraints:          make([]ConstraintRecord, 0, m.cons.reg.count()),
		Objective:            m.obj.Clone(),
		VariableTombstones:   m.vars.reg.tombstones(),
		ConstraintTombstones: m.cons.reg.tombstones(),
	}
	m.vars.forEach(func(id uint32, v *Variable) bool {
		msg.Variables = append(msg.Variables, VariableRecord{
			ID: VariableID(id), Lower: v.Lower, Upper: v.Upper, Integer: v.Integer, Name: v.Name,
		})
		return true
	})
	m.cons.forEach(func(id uint32, c *LinearConstraint) bool {
		msg.Constraints = append(msg.Constraints, ConstraintRecord{
			ID: ConstraintID(id), Lower: c.Lower, Upper: c.Upper, Row: rowToTerms(&c.Row), Name: c.Name,
		})
		return true
	})
	for _, name := range m.FamilyNames() {
		fs := m.families[name]
		msg.Families = append(msg.Families, FamilyMessage{
			Name:       name,
			Next:       fs.bound(),
			Tombstones: fs.famTombstones(),
			Entries:    fs.entries(),
		})
	}
	return msg
}

// FromMessage rebuilds a model from its serialized form. The rebuilt model
// starts with an empty journal and a fresh checkpoint token. The message is
// fully validated; a message that does not describe a consistent model is
// rejected without partial state leaking out.
func FromMessage(msg ModelMessage) (*Model, error) {
	if err := checkSerializationVersion(msg.MathprogVersion); err != nil {
		return nil, err
	}

	m := New(WithName(msg.Name), WithCapacity(len(msg.Variables)))

	for _, r := range msg.Variables {
		if err := m.vars.addAt(uint32(r.ID), Variable{Lower: r.Lower, Upper: r.Upper, Integer: r.Integer, Name: r.Name}); err != nil {
			return nil, err
		}
	}
	m.vars.reg.advance(msg.NextVariableID)
	if !slicesEqualU32(m.vars.reg.tombstones(), msg.VariableTombstones) {
		return nil, fmt.Errorf("variable tombstone set does not match entries: %w", ErrInvalidReference)
	}
	m.varRefs = make([]uint32, m.vars.reg.bound())

	inRange := func(vid VariableID) bool { return uint32(vid) < uint32(len(m.varRefs)) }

	for _, r := range msg.Constraints {
		row, err := rowFromTerms(r.Row)
		if err != nil {
			return nil, err
		}
		if err := m.cons.addAt(uint32(r.ID), LinearConstraint{Lower: r.Lower, Upper: r.Upper, Row: row, Name: r.Name}); err != nil {
			return nil, err
		}
		for _, vid := range row.Keys {
			if !inRange(vid) {
				return nil, fmt.Errorf("constraint %d references variable %d: %w", r.ID, vid, ErrDanglingReference)
			}
			m.refInc(vid)
		}
	}
	m.cons.reg.advance(msg.NextConstraintID)
	if !slicesEqualU32(m.cons.reg.tombstones(), msg.ConstraintTombstones) {
		return nil, fmt.Errorf("constraint tombstone set does not match entries: %w", ErrInvalidReference)
	}

	m.obj = msg.Objective.Clone()
	for _, vid := range m.obj.Linear.Keys {
		if !inRange(vid) {
			return nil, fmt.Errorf("objective references variable %d: %w", vid, ErrDanglingReference)
		}
		m.refInc(vid)
	}
	for _, key := range m.obj.Quadratic.Keys {
		a, b := key.Vars()
		if !inRange(a) || !inRange(b) {
			return nil, fmt.Errorf("objective references pair (%d, %d): %w", a, b, ErrDanglingReference)
		}
		m.quadRefs(key, 1)
	}

	for _, fm := range msg.Families {
		factory, ok := familyFactory(fm.Name)
		if !ok {
			return nil, fmt.Errorf("unknown family %q, register it before decoding: %w", fm.Name, ErrDanglingReference)
		}
		fs := factory(m)
		if err := fs.restore(fm.Entries, fm.Tombstones, fm.Next); err != nil {
			return nil, err
		}
		m.families[fm.Name] = fs
	}

	if res := Validate(m); !res.Ok() {
		return nil, fmt.Errorf("decoded model: %w", res.Err())
	}
	return m, nil
}

func checkSerializationVersion(v string) error {
	objectVersion, err := semver.Parse(v)
	if err != nil {
		return fmt.Errorf("when parsing mathprog version: %w", err)
	}
	if mathprog.Version.Compare(objectVersion) != 0 {
		log := logger.Logger()
		log.Warn().Str("binary", mathprog.Version.String()).Str("object", objectVersion.String()).Msg("mathprog version (binary) mismatch with model. there are no guarantees on compatibility")
	}
	return nil
}

// ToBytes serializes the model to a byte slice. Structurally equal models
// serialize to equal bytes; the encoding is deterministic.
func (m *Model) ToBytes() ([]byte, error) {
	msg := m.ToMessage()

	// two blocks: compressed tombstone ids, then the CBOR body;
	// that allows for a more efficient serialization/deserialization (+ parallelism)
	var ids, body []byte
	var g errgroup.Group
	g.Go(func() error {
		var err error
		ids, err = msg.idsToBytes()
		return err
	})
	g.Go(func() error {
		var err error
		body, err = msg.bodyToBytes()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h := header{idsLen: uint64(len(ids)), bodyLen: uint64(len(body))}
	buf := h.toBytes()
	buf = append(buf, ids...)
	buf = append(buf, body...)
	return buf, nil
}

// ModelFromBytes deserializes a model from a byte slice and returns the number
// of bytes read. Every atomic family present in the data must have been
// registered (RegisterFamily on any model) in this process beforehand.
func ModelFromBytes(data []byte) (*Model, int, error) {
	if len(data) < headerLen {
		return nil, 0, errors.New("invalid data length")
	}
	h := new(header)
	h.fromBytes(data)
	if uint64(len(data)) < headerLen+h.idsLen+h.bodyLen {
		return nil, 0, errors.New("invalid data length")
	}

	var msg ModelMessage
	var g errgroup.Group
	g.Go(func() error {
		return msg.idsFromBytes(data[headerLen : headerLen+h.idsLen])
	})

	ts := getTagSet()
	dm, err := cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecModeWithTags(ts)
	if err != nil {
		return nil, 0, err
	}
	decoder := dm.NewDecoder(bytes.NewReader(data[headerLen+h.idsLen : headerLen+h.idsLen+h.bodyLen]))
	if err := decoder.Decode(&msg); err != nil {
		return nil, 0, err
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	m, err := FromMessage(msg)
	if err != nil {
		return nil, 0, err
	}
	return m, headerLen + int(h.idsLen) + int(h.bodyLen), nil
}

func (msg *ModelMessage) bodyToBytes() ([]byte, error) {
	ts := getTagSet()
	enc, err := cbor.CoreDetEncOptions().EncModeWithTags(ts)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := enc.NewEncoder(buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msg *ModelMessage) idsToBytes() ([]byte, error) {
	// tombstone ids compress very well due to their nature (sequential integers)
	var buf32 []uint32
	var buf bytes.Buffer
	var err error
	buf.Grow(4 * (len(msg.VariableTombstones) + len(msg.ConstraintTombstones)))

	buf32, err = ioutils.CompressAndWriteUints32(&buf, msg.VariableTombstones, buf32)
	if err != nil {
		return nil, err
	}
	_, err = ioutils.CompressAndWriteUints32(&buf, msg.ConstraintTombstones, buf32)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msg *ModelMessage) idsFromBytes(in []byte) error {
	var buf32 []uint32
	var n int
	var err error
	buf32, n, msg.VariableTombstones, err = ioutils.ReadAndDecompressUints32(in, buf32)
	if err != nil {
		return err
	}
	_, _, msg.ConstraintTombstones, err = ioutils.ReadAndDecompressUints32(in[n:], buf32)
	return err
}

const headerLen = 2 * 8

type header struct {
	// length in bytes of each section
	idsLen  uint64
	bodyLen uint64
}

func (h *header) toBytes() []byte {
	buf := make([]byte, 0, headerLen+h.idsLen+h.bodyLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.idsLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.bodyLen)
	return buf
}

func (h *header) fromBytes(buf []byte) {
	h.idsLen = binary.LittleEndian.Uint64(buf[:8])
	h.bodyLen = binary.LittleEndian.Uint64(buf[8:16])
}

type updateMessage struct {
	MathprogVersion string
	Update          *ModelUpdate
}

// ToBytes serializes the update to a byte slice with deterministic encoding.
func (u *ModelUpdate) ToBytes() ([]byte, error) {
	msg := updateMessage{MathprogVersion: mathprog.Version.String(), Update: u}
	ts := getTagSet()
	enc, err := cbor.CoreDetEncOptions().EncModeWithTags(ts)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := enc.NewEncoder(buf).Encode(&msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UpdateFromBytes deserializes an update from a byte slice and returns the
// number of bytes read.
func UpdateFromBytes(data []byte) (*ModelUpdate, int, error) {
	ts := getTagSet()
	dm, err := cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecModeWithTags(ts)
	if err != nil {
		return nil, 0, err
	}
	decoder := dm.NewDecoder(bytes.NewReader(data))
	var msg updateMessage
	if err := decoder.Decode(&msg); err != nil {
		return nil, 0, err
	}
	if err := checkSerializationVersion(msg.MathprogVersion); err != nil {
		return nil, 0, err
	}
	if msg.Update == nil {
		return nil, 0, errors.New("empty update message")
	}
	return msg.Update, decoder.NumBytesRead(), nil
}

// FamilyPayloadTagBase is the base CBOR tag number for family payload types
// registered by external packages. Explicit tag numbers keep the encoding
// stable regardless of init() order.
const FamilyPayloadTagBase = 6309800

type registeredPayloadType struct {
	tagNum uint64
	typ    reflect.Type
}

var (
	payloadTypesMu         sync.Mutex
	registeredPayloadTypes []registeredPayloadType
)

// RegisterFamilyPayloadType registers the payload type of an external atomic
// constraint family for CBOR encoding under the given tag number. tagNum must
// be >= FamilyPayloadTagBase and unique across all registered payload types.
// Call it from an init() alongside the family's RegisterFamily call.
func RegisterFamilyPayloadType(tagNum uint64, payload any) {
	if tagNum < FamilyPayloadTagBase {
		panic(fmt.Sprintf("failed to register type %T: tag number %d below base %d", payload, tagNum, FamilyPayloadTagBase))
	}
	payloadTypesMu.Lock()
	defer payloadTypesMu.Unlock()
	for _, rt := range registeredPayloadTypes {
		if rt.tagNum == tagNum {
			panic(fmt.Sprintf("failed to register type %T: tag number %d already in use", payload, tagNum))
		}
	}
	registeredPayloadTypes = append(registeredPayloadTypes, registeredPayloadType{tagNum: tagNum, typ: reflect.TypeOf(payload)})
}

func getTagSet() cbor.TagSet {
	ts := cbor.NewTagSet()
	// https://www.iana.org/assignments/cbor-tags/cbor-tags.xhtml
	// 65536-15309735 Unassigned
	tagNum := uint64(6309735)
	addType := func(t reflect.Type) {
		if err := ts.Add(
			cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
			t,
			tagNum,
		); err != nil {
			panic(err)
		}
		tagNum++
	}

	addType(reflect.TypeOf(SecondOrderCone{}))

	payloadTypesMu.Lock()
	defer payloadTypesMu.Unlock()
	for _, rt := range registeredPayloadTypes {
		if err := ts.Add(
			cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
			rt.typ,
			rt.tagNum,
		); err != nil {
			panic(err)
		}
	}
	return ts
}
