package protocol

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"
)

// LoadMap decodes a map document as stored on disk: `name`, optional `ppm`
// (DefaultPPM when absent) and `shapes`.
func LoadMap(r io.Reader) (*MapSnapshot, error) {
	var m MapSnapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, err.Error())
	}
	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Normalize fills in DefaultPPM when the document carried no scale. An
// explicit non-positive scale is left for Validate to reject.
func (m *MapSnapshot) Normalize() {
	if m != nil && m.PPM == 0 {
		m.PPM = DefaultPPM
	}
}

// Validate checks the scale only. Individual malformed shapes are tolerated
// and skipped at draw time.
func (m *MapSnapshot) Validate() error {
	if m == nil {
		return ErrInvalidSnapshot
	}
	if m.PPM <= 0 || math.IsNaN(m.PPM) || math.IsInf(m.PPM, 0) {
		return errors.Wrapf(ErrInvalidScale, "ppm=%v", m.PPM)
	}
	return nil
}
