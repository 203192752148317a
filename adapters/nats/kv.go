package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/cbridge-go/ports/kv"
)

type KvConfig struct {
	Connect Connector
	Bucket  string

	// TTL expires entries bucket-wide. JetStream KV has no per-key TTL;
	// kv.PutOptions.TTL is ignored here.
	TTL time.Duration

	MaxBytes int64
}

// KvStore is a kv.Store backed by a JetStream key/value bucket, used to
// persist entity state across passivation and node restarts.
type KvStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
}

type kvEntry struct {
	Data []byte         `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

func NewKvStore(cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("nats: bucket is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 16 * 1024 * 1024
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		TTL:      cfg.TTL,
		MaxBytes: maxBytes,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: create bucket %s: %w", cfg.Bucket, err)
	}

	return &KvStore{kv: bucket, closeNc: closeNc}, nil
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, _ kv.PutOptions) error {
	data, err := json.Marshal(kvEntry{Data: entry.Data, Meta: entry.Meta})
	if err != nil {
		return err
	}
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("nats: put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("nats: get %s: %w", key, err)
	}

	var e kvEntry
	if err := json.Unmarshal(v.Value(), &e); err != nil {
		return kv.Entry{}, fmt.Errorf("nats: decode %s: %w", key, err)
	}
	return kv.Entry{Data: e.Data, Meta: e.Meta}, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats: delete %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Close() error {
	k.closeNc()
	return nil
}

var _ kv.Store = (*KvStore)(nil)
