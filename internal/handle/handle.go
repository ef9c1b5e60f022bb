// Package handle generates the identifiers that name console processes and
// their log files.
//
// Handles must stay unique across restarts: records restored from a previous
// run sit next to freshly created ones, so a counter is not enough. Both
// generators here draw from crypto/rand. ULIDs are the default because they
// sort by creation time, which keeps the log directory readable.
package handle

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces a new unique handle on every call.
type Generator interface {
	Generate() string
}

// Format selects the handle encoding.
type Format string

const (
	FormatULID Format = "ulid"
	FormatUUID Format = "uuid"
)

// ULIDGenerator generates lowercase ULID handles.
type ULIDGenerator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

// NewULIDGenerator creates a generator backed by crypto/rand.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: rand.Reader}
}

// NewULIDGeneratorWithEntropy creates a generator reading randomness from
// entropy. Generate panics if entropy fails.
func NewULIDGeneratorWithEntropy(entropy io.Reader) *ULIDGenerator {
	return &ULIDGenerator{entropy: entropy}
}

// Generate returns a new ULID handle.
func (g *ULIDGenerator) Generate() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String())
}

// UUIDGenerator generates random (v4) UUID handles.
type UUIDGenerator struct{}

// Generate returns a new UUID handle.
func (UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// New returns the generator for the given format.
func New(format Format) (Generator, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatULID, "":
		return NewULIDGenerator(), nil
	case FormatUUID:
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown handle format: %q", format)
	}
}

var (
	defaultGenerator Generator
	once             sync.Once
)

// Default returns the process-wide ULID generator.
func Default() Generator {
	once.Do(func() {
		defaultGenerator = NewULIDGenerator()
	})
	return defaultGenerator
}
