package regions

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/matchgo/internal/fs"
)

// DescriberFileName is the canonical name of the describer document inside
// the matches directory. It is written by the feature extraction stage and
// read back here so matching interprets descriptor payloads the same way
// they were produced.
const DescriberFileName = "image_describer.json"

// Describer declares how the dataset's descriptors were computed.
type Describer struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Dimension int    `json:"dimension"`
}

// Validate checks the describer fields.
func (d Describer) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("regions: describer has no name")
	}

	if d.Dimension <= 0 {
		return fmt.Errorf("regions: describer dimension %d", d.Dimension)
	}

	if d.Kind != KindScalar && d.Kind != KindBinary {
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(d.Kind))
	}

	return nil
}

// LoadDescriber reads the describer document from path.
func LoadDescriber(path string) (Describer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Describer{}, fmt.Errorf("regions: open describer: %w", err)
	}
	defer f.Close()

	var d Describer

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&d); err != nil {
		return Describer{}, fmt.Errorf("regions: decode describer %s: %w", path, err)
	}

	if err := d.Validate(); err != nil {
		return Describer{}, err
	}

	return d, nil
}

// SaveDescriber writes the describer document to path atomically.
func SaveDescriber(path string, d Describer) error {
	if err := d.Validate(); err != nil {
		return err
	}

	return fs.WriteAtomic(fs.Default, path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(d)
	})
}
