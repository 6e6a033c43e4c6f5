package sampler

import "github.com/aclements/nrgprof/energy"

// Short is the "short" sampling discipline: no worker goroutine,
// exactly two readings (entry and exit).
type Short struct {
	reader energy.Reader
	entry  energy.Reading
}

// NewShort constructs a Short sampler over reader.
func NewShort(reader energy.Reader) *Short {
	return &Short{reader: reader}
}

func (s *Short) Start() error {
	r, err := s.reader.Read()
	if err != nil {
		return err
	}
	s.entry = r
	return nil
}

func (s *Short) Stop() ([]energy.Reading, error) {
	r, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	return []energy.Reading{s.entry, r}, nil
}
