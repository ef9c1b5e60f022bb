package handle

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestULIDGenerate(t *testing.T) {
	gen := NewULIDGenerator()

	h1 := gen.Generate()
	h2 := gen.Generate()

	assert.NotEqual(t, h1, h2)
	assert.Len(t, h1, 26)
	assert.Regexp(t, handlePattern, h1)

	_, err := ulid.ParseStrict(h1)
	assert.NoError(t, err, "lowercase ULIDs should still parse")
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestULIDGenerateWithEntropy(t *testing.T) {
	gen := NewULIDGeneratorWithEntropy(zeroReader{})

	h := gen.Generate()
	assert.Equal(t, strings.Repeat("0", 16), h[10:], "random part comes from the entropy source")

	id, err := ulid.ParseStrict(h)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ulid.Time(id.Time()), time.Second)
}

func TestULIDGenerateEntropyFailure(t *testing.T) {
	gen := NewULIDGeneratorWithEntropy(iotest.ErrReader(errors.New("no entropy")))

	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDGenerate(t *testing.T) {
	gen := UUIDGenerator{}

	h := gen.Generate()
	assert.Regexp(t, handlePattern, h)

	_, err := uuid.Parse(h)
	assert.NoError(t, err)
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  Format
		wantErr bool
	}{
		{"", false},
		{FormatULID, false},
		{"ULID", false},
		{FormatUUID, false},
		{"counter", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			gen, err := New(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, gen.Generate())
		})
	}
}

func TestConcurrentGenerationIsUnique(t *testing.T) {
	gen := Default()

	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, gen.Generate())
			}
			mu.Lock()
			for _, h := range local {
				seen[h] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
