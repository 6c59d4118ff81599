package backends

import (
	"fmt"

	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the persisted messages:
//
//	message State  { repeated Stream streams = 1; bytes secret = 2; }
//	message Stream { string id = 1; string application = 2; string name = 3;
//	                 string auth_key = 4; int64 auth_expire = 5; string notes = 6;
//	                 bool active = 7; bool blocked = 8; }
const (
	stateStreams protowire.Number = 1
	stateSecret  protowire.Number = 2

	streamID          protowire.Number = 1
	streamApplication protowire.Number = 2
	streamName        protowire.Number = 3
	streamAuthKey     protowire.Number = 4
	streamAuthExpire  protowire.Number = 5
	streamNotes       protowire.Number = 6
	streamActive      protowire.Number = 7
	streamBlocked     protowire.Number = 8
)

// EncodeState serializes state in protobuf wire format.
func EncodeState(state *models.State) []byte {
	var b []byte
	if state == nil {
		return b
	}
	for _, s := range state.Streams {
		b = protowire.AppendTag(b, stateStreams, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeStream(s))
	}
	if len(state.Secret) > 0 {
		b = protowire.AppendTag(b, stateSecret, protowire.BytesType)
		b = protowire.AppendBytes(b, state.Secret)
	}
	return b
}

func encodeStream(s *models.Stream) []byte {
	var b []byte
	b = appendString(b, streamID, s.ID)
	b = appendString(b, streamApplication, s.Application)
	b = appendString(b, streamName, s.Name)
	b = appendString(b, streamAuthKey, s.AuthKey)
	if s.AuthExpire != 0 {
		b = protowire.AppendTag(b, streamAuthExpire, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.AuthExpire))
	}
	b = appendString(b, streamNotes, s.Notes)
	b = appendBool(b, streamActive, s.Active)
	b = appendBool(b, streamBlocked, s.Blocked)
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// DecodeState parses data written by EncodeState. Unknown fields are
// skipped. Empty input yields an empty state.
func DecodeState(data []byte) (*models.State, error) {
	state := &models.State{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == stateStreams && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			stream, err := decodeStream(v)
			if err != nil {
				return 0, err
			}
			state.Streams = append(state.Streams, stream)
			return n, nil
		case num == stateSecret && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				state.Secret = append([]byte(nil), v...)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

func decodeStream(data []byte) (*models.Stream, error) {
	s := &models.Stream{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch typ {
		case protowire.BytesType:
			var dst *string
			switch num {
			case streamID:
				dst = &s.ID
			case streamApplication:
				dst = &s.Application
			case streamName:
				dst = &s.Name
			case streamAuthKey:
				dst = &s.AuthKey
			case streamNotes:
				dst = &s.Notes
			}
			if dst != nil {
				v, n := protowire.ConsumeString(b)
				*dst = v
				return n, nil
			}
		case protowire.VarintType:
			var apply func(uint64)
			switch num {
			case streamAuthExpire:
				apply = func(v uint64) { s.AuthExpire = int64(v) }
			case streamActive:
				apply = func(v uint64) { s.Active = protowire.DecodeBool(v) }
			case streamBlocked:
				apply = func(v uint64) { s.Blocked = protowire.DecodeBool(v) }
			}
			if apply != nil {
				v, n := protowire.ConsumeVarint(b)
				if n >= 0 {
					apply(v)
				}
				return n, nil
			}
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	return s, nil
}

// consumeFields walks the top-level fields of a message. fn receives the
// bytes after the tag and returns how many of them the value used, or a
// negative protowire error code.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
