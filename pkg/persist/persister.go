package persist

// Persister handles I/O for a specific state type using a Codec.
type Persister[T any] struct {
	codec Codec
}

// NewPersister creates a persister with the given codec.
func NewPersister[T any](codec Codec) *Persister[T] {
	return &Persister[T]{codec: codec}
}

// Extension returns the file extension of the underlying codec.
func (p *Persister[T]) Extension() string {
	return p.codec.Extension()
}

// Save atomically writes state to path.
func (p *Persister[T]) Save(path string, state *T) error {
	return SaveFile(path, p.codec, state)
}

// Load reads the state stored at path.
func (p *Persister[T]) Load(path string) (*T, error) {
	var state T

	err := LoadFile(path, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
