package models

// State is everything a backend persists.
type State struct {
	Streams []*Stream
	Secret  []byte
}

// Clone returns a deep copy so callers can mutate it freely.
func (s *State) Clone() *State {
	if s == nil {
		return &State{}
	}
	out := &State{
		Streams: make([]*Stream, 0, len(s.Streams)),
	}
	if s.Secret != nil {
		out.Secret = append([]byte(nil), s.Secret...)
	}
	for _, stream := range s.Streams {
		c := *stream
		out.Streams = append(out.Streams, &c)
	}
	return out
}

// FindByID returns the stream with the given id and its index, or nil and -1.
func (s *State) FindByID(id string) (*Stream, int) {
	for i, stream := range s.Streams {
		if stream.ID == id {
			return stream, i
		}
	}
	return nil, -1
}
