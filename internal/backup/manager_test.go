package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mood-tracker/internal/domain"
	"mood-tracker/internal/storage"
)

type memStorage struct {
	mu        sync.Mutex
	objects   map[string]string
	uploadErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]string)}
}

func (s *memStorage) Upload(ctx context.Context, bucket, key string, body io.Reader) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = string(data)
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func (s *memStorage) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ObjectInfo
	for key, data := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (s *memStorage) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type staticSource []domain.MoodRecord

func (s staticSource) Records() []domain.MoodRecord { return s }

func newTestManager(store storage.Service, retain int) *manager {
	logger, _ := test.NewNullLogger()
	m := NewManager(Config{
		Bucket:    "moods",
		KeyPrefix: "/snapshots/",
		Interval:  10 * time.Millisecond,
		Retain:    retain,
		Logger:    logger,
	}, staticSource{{UserID: 1, Labels: []string{"happy", "sad"}}, {UserID: 2}}, store)
	return m.(*manager)
}

func TestRunOnceUploadsKeyedSnapshot(t *testing.T) {
	store := newMemStorage()
	m := newTestManager(store, 5)
	m.now = func() time.Time { return time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC) }

	location, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, "s3://moods/snapshots/moods-20240510T093000Z-"), location)

	require.Equal(t, 1, store.count())
	for _, data := range store.objects {
		assert.Equal(t, "1,happy,sad\n2\n", data)
	}
}

func TestRunOncePrunesOldSnapshots(t *testing.T) {
	store := newMemStorage()
	m := newTestManager(store, 2)

	base := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		m.now = func() time.Time { return ts }
		_, err := m.RunOnce(context.Background())
		require.NoError(t, err)
	}

	objects, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Contains(t, objects[0].Key, "20240510T090300Z")
	assert.Contains(t, objects[1].Key, "20240510T090200Z")
}

func TestRunOnceUploadFailure(t *testing.T) {
	store := newMemStorage()
	store.uploadErr = errors.New("access denied")
	m := newTestManager(store, 2)

	_, err := m.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.count())
}

func TestStartAndShutdown(t *testing.T) {
	store := newMemStorage()
	m := newTestManager(store, 100)

	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()), "second start is rejected")

	assert.Eventually(t, func() bool { return store.count() > 0 }, time.Second, 5*time.Millisecond)
	m.Shutdown()
}

func TestStartRequiresBucket(t *testing.T) {
	m := NewManager(Config{}, staticSource{}, newMemStorage())
	require.Error(t, m.Start(context.Background()))
}
