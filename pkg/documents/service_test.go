package documents

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ilkoid/knowme/pkg/s3storage"
	"github.com/ilkoid/knowme/pkg/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	user, source string
}

// memIndex — индекс в памяти.
type memIndex struct {
	chunks    []chunk
	lastLimit int
	failCount error
}

func (m *memIndex) match(c chunk, f vectorstore.Filter) bool {
	return (f.UserID == "" || c.user == f.UserID) && (f.Source == "" || c.source == f.Source)
}

func (m *memIndex) Search(context.Context, []float32, vectorstore.Filter, int) ([]vectorstore.Point, error) {
	return nil, nil
}

func (m *memIndex) Sources(_ context.Context, f vectorstore.Filter, limit int) ([]string, error) {
	m.lastLimit = limit
	var out []string
	for _, c := range m.chunks {
		if m.match(c, f) && len(out) < limit {
			out = append(out, c.source)
		}
	}
	return out, nil
}

func (m *memIndex) Count(_ context.Context, f vectorstore.Filter) (int, error) {
	if m.failCount != nil {
		return 0, m.failCount
	}
	n := 0
	for _, c := range m.chunks {
		if m.match(c, f) {
			n++
		}
	}
	return n, nil
}

func (m *memIndex) Delete(_ context.Context, f vectorstore.Filter) error {
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if !m.match(c, f) {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

// memArchive — архив в памяти.
type memArchive struct {
	objects map[string]bool
	removed []string
}

func (a *memArchive) Stat(_ context.Context, key string) (s3storage.StoredObject, error) {
	if !a.objects[key] {
		return s3storage.StoredObject{}, fmt.Errorf("%w: %s", s3storage.ErrObjectNotFound, key)
	}
	return s3storage.StoredObject{Key: key}, nil
}

func (a *memArchive) Remove(_ context.Context, key string) error {
	delete(a.objects, key)
	a.removed = append(a.removed, key)
	return nil
}

func fixture() *memIndex {
	return &memIndex{chunks: []chunk{
		{"u1", "go.pdf"}, {"u1", "go.pdf"}, {"u1", "alpha.pdf"},
		{"u2", "go.pdf"}, {"u2", "secret.pdf"},
	}}
}

func TestList_DistinctSortedPerUser(t *testing.T) {
	idx := fixture()
	svc := NewService(idx, nil)

	names, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.pdf", "go.pdf"}, names)
	assert.Equal(t, 1000, idx.lastLimit)

	names, err = svc.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NotNil(t, names)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"go.pdf", "go.pdf", false},
		{"  go.pdf  ", "go.pdf", false},
		{"../../etc/go.pdf", "go.pdf", false},
		{`C:\docs\go.pdf`, "go.pdf", false},
		{"", "", true},
		{"   ", "", true},
		{"/", "", true},
		{"..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeName(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDelete_RemovesOnlyUsersChunks(t *testing.T) {
	idx := fixture()
	archive := &memArchive{objects: map[string]bool{"u1/go.pdf": true}}
	svc := NewService(idx, archive)

	name, n, err := svc.Delete(context.Background(), "/tmp/go.pdf", "u1")
	require.NoError(t, err)
	assert.Equal(t, "go.pdf", name)
	assert.Equal(t, 2, n)

	remaining, _ := idx.Count(context.Background(), vectorstore.Filter{Source: "go.pdf"})
	assert.Equal(t, 1, remaining)
	assert.Equal(t, []string{"u1/go.pdf"}, archive.removed)
}

func TestDelete_NotFound(t *testing.T) {
	archive := &memArchive{objects: map[string]bool{}}
	svc := NewService(fixture(), archive)

	_, _, err := svc.Delete(context.Background(), "secret.pdf", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "secret.pdf")
	assert.Empty(t, archive.removed)
}

func TestDelete_MissingArchiveCopyIsFine(t *testing.T) {
	archive := &memArchive{objects: map[string]bool{}}
	svc := NewService(fixture(), archive)

	_, n, err := svc.Delete(context.Background(), "alpha.pdf", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, archive.removed)
}

func TestDelete_IndexFailure(t *testing.T) {
	idx := fixture()
	idx.failCount = errors.New("qdrant unavailable")
	svc := NewService(idx, nil)

	_, _, err := svc.Delete(context.Background(), "go.pdf", "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "qdrant unavailable")
}

func TestDelete_InvalidName(t *testing.T) {
	_, _, err := NewService(fixture(), nil).Delete(context.Background(), "  ", "u1")
	assert.ErrorIs(t, err, ErrInvalidName)
}
