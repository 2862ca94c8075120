package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/sprite-ai/margin/internal/model"
)

// Persister reads and writes store snapshots.
type Persister interface {
	// Load returns an empty snapshot when nothing has been saved yet.
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Name() string
}

func emptySnapshot() Snapshot {
	return Snapshot{Files: map[string]model.FileState{}, Sessions: map[string][]model.ChatMessage{}}
}

// FilePersister stores the snapshot as a JSON file, replaced atomically.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (p *FilePersister) Name() string { return "file" }

func (p *FilePersister) Load(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read state: %w", err)
	}
	return decode(data)
}

func (p *FilePersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".margin-state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.Path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// DefaultRedisKey is the key the snapshot is stored under.
const DefaultRedisKey = "margin:state"

// RedisPersister stores the snapshot as a single JSON value in Redis.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister connects to redisURL and verifies the connection.
func NewRedisPersister(ctx context.Context, redisURL, key string) (*RedisPersister, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisPersisterWithClient(client, key), nil
}

// NewRedisPersisterWithClient wraps an existing client.
func NewRedisPersisterWithClient(client *redis.Client, key string) *RedisPersister {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{client: client, key: key}
}

func (p *RedisPersister) Name() string { return "redis" }

func (p *RedisPersister) Load(ctx context.Context) (Snapshot, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load state: %w", err)
	}
	return decode(data)
}

func (p *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}

func decode(data []byte) (Snapshot, error) {
	snap := emptySnapshot()
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode state: %w", err)
	}
	if snap.Files == nil {
		snap.Files = map[string]model.FileState{}
	}
	if snap.Sessions == nil {
		snap.Sessions = map[string][]model.ChatMessage{}
	}
	return snap, nil
}
