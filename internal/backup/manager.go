// Package backup periodically copies the mood record to object storage.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mood-tracker/internal/domain"
	"mood-tracker/internal/repository/flatfile"
	"mood-tracker/internal/storage"
)

// Manager uploads snapshots on a fixed interval and prunes old ones.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	RunOnce(ctx context.Context) (string, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
}

// Snapshotter provides a consistent copy of every mood log.
type Snapshotter interface {
	Records() []domain.MoodRecord
}

type Config struct {
	Bucket    string
	KeyPrefix string
	Interval  time.Duration
	Retain    int
	Logger    logrus.FieldLogger
}

type manager struct {
	cfg     Config
	source  Snapshotter
	storage storage.Service
	now     func() time.Time

	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewManager(cfg Config, source Snapshotter, store storage.Service) Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 24
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	return &manager{
		cfg:     cfg,
		source:  source,
		storage: store,
		now:     time.Now,
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.cfg.Bucket == "" {
		return fmt.Errorf("backup bucket is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("backup manager already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunOnce(runCtx); err != nil {
					m.cfg.Logger.Warnf("mood snapshot: %v", err)
				}
			}
		}
	}()

	m.cfg.Logger.Infof("backup manager started, every %s to s3://%s/%s", m.cfg.Interval, m.cfg.Bucket, m.cfg.KeyPrefix)
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("backup manager stopped")
}

// RunOnce uploads one snapshot and prunes beyond the retention count. Pruning
// failures are logged; the snapshot location is still returned.
func (m *manager) RunOnce(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := flatfile.Encode(&buf, flatfile.FormatKeyed, m.source.Records()); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := m.objectKey()
	location, err := m.storage.Upload(ctx, m.cfg.Bucket, key, &buf)
	if err != nil {
		return "", err
	}
	logger := m.cfg.Logger.WithField("object", location)
	logger.Info("mood snapshot uploaded")

	if err := m.prune(ctx); err != nil {
		logger.Warnf("prune snapshots: %v", err)
	}
	return location, nil
}

func (m *manager) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := m.storage.ListObjects(ctx, m.cfg.Bucket, m.listPrefix())
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

func (m *manager) prune(ctx context.Context) error {
	objects, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(objects) <= m.cfg.Retain {
		return nil
	}
	stale := make([]string, 0, len(objects)-m.cfg.Retain)
	for _, obj := range objects[m.cfg.Retain:] {
		stale = append(stale, obj.Key)
	}
	return m.storage.DeleteObjects(ctx, m.cfg.Bucket, stale)
}

// keys sort chronologically: the timestamp precedes the random suffix
func (m *manager) objectKey() string {
	name := fmt.Sprintf("moods-%s-%s.csv", m.now().UTC().Format("20060102T150405Z"), uuid.NewString())
	if m.cfg.KeyPrefix == "" {
		return name
	}
	return path.Join(m.cfg.KeyPrefix, name)
}

func (m *manager) listPrefix() string {
	if m.cfg.KeyPrefix == "" {
		return "moods-"
	}
	return m.cfg.KeyPrefix + "/moods-"
}
