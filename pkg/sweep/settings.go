package sweep

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/hallsweep/pkg/oracle"
	"github.com/Sumatoshi-tech/hallsweep/pkg/result"
)

// ErrInvalidSettings is returned when Settings fail validation.
var ErrInvalidSettings = errors.New("invalid sweep settings")

// DefaultCheckpointInterval is how much compute time may pass between saves.
const DefaultCheckpointInterval = time.Minute

// Settings fix the physics and bookkeeping of a run. They never change while
// the run is in progress.
type Settings struct {
	// FermiEnergy is passed to every oracle call.
	FermiEnergy float64
	// Contacts is the number of device contacts.
	Contacts int
	// ContactID is the injecting contact.
	ContactID int
	// DL is the injection spacing along a contact.
	DL float64
	// NTh is the number of injection angles.
	NTh int
	// OutputDir receives checkpoints and the final artifact.
	OutputDir string
	// OutputFile is the artifact name inside OutputDir.
	OutputFile string
	// CheckpointInterval is the compute time between checkpoint saves.
	// Zero saves after every point.
	CheckpointInterval time.Duration
	// Clean discards prior progress.
	Clean bool
}

// Validate checks the settings.
func (s Settings) Validate() error {
	switch {
	case s.Contacts < 1:
		return fmt.Errorf("%w: %d contacts", ErrInvalidSettings, s.Contacts)
	case s.ContactID < 0 || s.ContactID >= s.Contacts:
		return fmt.Errorf("%w: contact id %d not in [0, %d)", ErrInvalidSettings, s.ContactID, s.Contacts)
	case s.OutputDir == "":
		return fmt.Errorf("%w: no output directory", ErrInvalidSettings)
	case s.CheckpointInterval < 0:
		return fmt.Errorf("%w: negative checkpoint interval %s", ErrInvalidSettings, s.CheckpointInterval)
	case s.NTh < 0 || s.DL < 0:
		return fmt.Errorf("%w: negative injection grid (dl=%g, nth=%d)", ErrInvalidSettings, s.DL, s.NTh)
	}

	return nil
}

// ArtifactPath is where the coordinator writes the final artifact.
func (s Settings) ArtifactPath() string {
	name := s.OutputFile
	if name == "" {
		name = result.DefaultFileName
	}

	return filepath.Join(s.OutputDir, name)
}

// CheckpointDir holds the per-worker records.
func (s Settings) CheckpointDir() string {
	return filepath.Join(s.OutputDir, "checkpoints")
}

// Request is the oracle request for one bias point.
func (s Settings) Request(field, voltage []float64) oracle.Request {
	return oracle.Request{
		Energy:    s.FermiEnergy,
		Field:     field,
		Voltage:   voltage,
		ContactID: s.ContactID,
		Contacts:  s.Contacts,
		DL:        s.DL,
		NTh:       s.NTh,
	}
}
