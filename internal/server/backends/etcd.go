package backends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

const defaultEtcdDialTimeout = 5 * time.Second

// EtcdConfig configures the etcd backend.
type EtcdConfig struct {
	Endpoints   []string       `toml:"endpoints" env:"ENDPOINTS" envSeparator:","`
	Key         string         `toml:"key" env:"KEY"`
	Username    string         `toml:"username" env:"USERNAME"`
	Password    string         `toml:"password" env:"PASSWORD"`
	DialTimeout timex.Duration `toml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// EtcdBackend keeps the state under a single etcd key. Reads are served from
// a cache that a watch keeps current, writes are transactions on the key's
// mod revision.
type EtcdBackend struct {
	client *clientv3.Client
	key    string
	logger logging.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	cache    *models.State
	cacheRev int64
	readRev  int64
}

// OpenEtcd connects to etcd, loads the current value and starts watching the
// key.
func OpenEtcd(ctx context.Context, cfg EtcdConfig, logger logging.Logger) (*EtcdBackend, error) {
	timeout := cfg.DialTimeout.Duration
	if timeout <= 0 {
		timeout = defaultEtcdDialTimeout
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd connect: %w", err)
	}

	b := newEtcdBackend(cfg.Key, logger)
	b.client = client

	getCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := client.Get(getCtx, b.key)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("etcd get: %w", err)
	}
	if len(resp.Kvs) > 0 {
		if err := b.applyValue(resp.Kvs[0].Value, resp.Kvs[0].ModRevision); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	watchCtx, stop := context.WithCancel(context.Background())
	b.cancel = stop
	b.done = make(chan struct{})
	go b.watch(watchCtx, resp.Header.Revision+1)

	return b, nil
}

func newEtcdBackend(key string, logger logging.Logger) *EtcdBackend {
	if key == "" {
		key = common.StateKey
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &EtcdBackend{
		key:    key,
		logger: logger.With("module", "etcd"),
		cache:  &models.State{},
	}
}

func (b *EtcdBackend) watch(ctx context.Context, fromRev int64) {
	defer close(b.done)

	wch := b.client.Watch(ctx, b.key, clientv3.WithRev(fromRev))
	for wresp := range wch {
		if err := wresp.Err(); err != nil {
			b.logger.Warn(ctx, "watch error", "error", err)
			continue
		}
		for _, ev := range wresp.Events {
			switch ev.Type {
			case clientv3.EventTypePut:
				if err := b.applyValue(ev.Kv.Value, ev.Kv.ModRevision); err != nil {
					b.logger.Error(ctx, "watch: failed to parse state", "error", err)
				}
			case clientv3.EventTypeDelete:
				b.applyDelete()
			}
		}
	}
	b.logger.Info(context.Background(), "watch stopped")
}

// applyValue replaces the cache with value unless rev is older than what is
// already cached.
func (b *EtcdBackend) applyValue(value []byte, rev int64) error {
	state, err := DecodeState(value)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if rev < b.cacheRev {
		return nil
	}
	b.cache = state
	b.cacheRev = rev
	return nil
}

func (b *EtcdBackend) applyDelete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = &models.State{}
	b.cacheRev = 0
}

func (b *EtcdBackend) Read(ctx context.Context) (*models.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readRev = b.cacheRev
	return b.cache.Clone(), nil
}

func (b *EtcdBackend) Write(ctx context.Context, state *models.State) error {
	if state == nil {
		return errors.New("state should not be nil")
	}
	data := EncodeState(state)

	b.mu.Lock()
	rev := b.readRev
	b.mu.Unlock()

	resp, err := b.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(b.key), "=", rev)).
		Then(clientv3.OpPut(b.key, string(data))).
		Else(clientv3.OpGet(b.key)).
		Commit()
	if err != nil {
		return fmt.Errorf("etcd txn: %w", err)
	}

	if !resp.Succeeded {
		// refresh the cache so the retry sees the winning write
		if len(resp.Responses) > 0 {
			if rr := resp.Responses[0].GetResponseRange(); rr != nil {
				if len(rr.Kvs) > 0 {
					if err := b.applyValue(rr.Kvs[0].Value, rr.Kvs[0].ModRevision); err != nil {
						return err
					}
				} else {
					b.applyDelete()
				}
			}
		}
		return common.ErrConflict
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if resp.Header.Revision >= b.cacheRev {
		b.cache = state.Clone()
		b.cacheRev = resp.Header.Revision
	}
	b.readRev = resp.Header.Revision
	return nil
}

func (b *EtcdBackend) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	var err error
	if b.client != nil {
		err = b.client.Close()
	}
	if b.done != nil {
		<-b.done
	}
	return err
}
