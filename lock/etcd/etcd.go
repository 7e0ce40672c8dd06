// Package etcd implements a lock coordinator on etcd v3. Every lease
// is a key under <prefix>/<lock key>/ bound to the session's etcd
// lease, so the locks of a process that dies vanish when its lease
// expires. Requests are ordered by the revision at which their key
// was created.
package etcd

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/coreos/etcd/clientv3"
	"github.com/coreos/etcd/clientv3/concurrency"
	"github.com/jrife/cfstore/lock"
	"github.com/jrife/cfstore/utils/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultPrefix is the key prefix used when none is configured
	DefaultPrefix = "/cfstore/locks"
	// DefaultTTL is the session lease TTL in seconds used when none
	// is configured
	DefaultTTL = 10
)

// CoordinatorConfig configures a Coordinator
type CoordinatorConfig struct {
	// Endpoints are the etcd endpoints to dial. Ignored if Client
	// is set.
	Endpoints []string
	// DialTimeout bounds dialing etcd
	DialTimeout time.Duration
	// Client is an existing etcd client. The coordinator does not
	// close it.
	Client *clientv3.Client
	// Prefix is the key prefix under which locks are kept
	Prefix string
	// TTL is the session lease TTL in seconds
	TTL int
	// Logger defaults to zap.L()
	Logger *zap.Logger
}

var _ lock.Coordinator = (*Coordinator)(nil)

// Coordinator grants locks through etcd
type Coordinator struct {
	client     *clientv3.Client
	ownsClient bool
	prefix     string
	ttl        int
	logger     *zap.Logger
}

// New creates a coordinator
func New(config CoordinatorConfig) (*Coordinator, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}

	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	coordinator := &Coordinator{
		client: config.Client,
		prefix: config.Prefix,
		ttl:    config.TTL,
		logger: config.Logger,
	}

	if coordinator.client == nil {
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   config.Endpoints,
			DialTimeout: config.DialTimeout,
		})

		if err != nil {
			return nil, fmt.Errorf("could not connect to etcd: %w", err)
		}

		coordinator.client = client
		coordinator.ownsClient = true
	}

	return coordinator, nil
}

// NewSession implements lock.Coordinator.NewSession
func (coordinator *Coordinator) NewSession(ctx context.Context) (lock.Session, error) {
	s, err := concurrency.NewSession(coordinator.client, concurrency.WithTTL(coordinator.ttl), concurrency.WithContext(ctx))

	if err != nil {
		return nil, fmt.Errorf("could not create etcd session: %w", err)
	}

	coordinator.logger.Debug("opened etcd session", zap.Int64("lease", int64(s.Lease())))

	return &session{coordinator: coordinator, session: s}, nil
}

// Close closes the etcd client if the coordinator dialed it
func (coordinator *Coordinator) Close() error {
	if !coordinator.ownsClient {
		return nil
	}

	return coordinator.client.Close()
}

var _ lock.Session = (*session)(nil)

type session struct {
	coordinator *Coordinator
	session     *concurrency.Session
}

func (s *session) Acquire(ctx context.Context, key string, mode lock.Mode) (lock.Lease, error) {
	select {
	case <-s.session.Done():
		return nil, lock.ErrSessionClosed
	default:
	}

	client := s.coordinator.client
	lockPrefix := path.Join(s.coordinator.prefix, key) + "/"
	myKey := fmt.Sprintf("%s%s/%x-%s", lockPrefix, mode, s.session.Lease(), uuid.Short())
	resp, err := client.Put(ctx, myKey, "", clientv3.WithLease(s.session.Lease()))

	if err != nil {
		return nil, fmt.Errorf("could not put lock key: %w", err)
	}

	l := &lease{client: client, key: myKey}
	waitPrefix := lockPrefix

	if mode == lock.Shared {
		waitPrefix = lockPrefix + lock.Exclusive.String() + "/"
	}

	if err := s.waitPredecessors(ctx, waitPrefix, resp.Header.Revision); err != nil {
		// The key must go even though ctx is done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if rerr := l.Release(releaseCtx); rerr != nil {
			s.coordinator.logger.Warn("could not delete abandoned lock key", zap.String("key", myKey), zap.Error(rerr))
		}

		return nil, err
	}

	return l, nil
}

// waitPredecessors waits until no key under waitPrefix was created
// before rev
func (s *session) waitPredecessors(ctx context.Context, waitPrefix string, rev int64) error {
	client := s.coordinator.client
	opts := append(clientv3.WithLastCreate(), clientv3.WithMaxCreateRev(rev-1))

	for {
		resp, err := client.Get(ctx, waitPrefix, opts...)

		if err != nil {
			return err
		}

		if len(resp.Kvs) == 0 {
			return nil
		}

		if err := s.waitDelete(ctx, string(resp.Kvs[0].Key), resp.Header.Revision); err != nil {
			return err
		}
	}
}

func (s *session) waitDelete(ctx context.Context, key string, rev int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watch := s.coordinator.client.Watch(clientv3.WithRequireLeader(ctx), key, clientv3.WithRev(rev))

	for {
		select {
		case <-s.session.Done():
			return lock.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		case wr, ok := <-watch:
			if !ok {
				return ctx.Err()
			}

			if err := wr.Err(); err != nil {
				return err
			}

			for _, ev := range wr.Events {
				if ev.Type == clientv3.EventTypeDelete {
					return nil
				}
			}
		}
	}
}

func (s *session) Done() <-chan struct{} {
	return s.session.Done()
}

func (s *session) Close() error {
	return s.session.Close()
}

type lease struct {
	client *clientv3.Client
	key    string
}

func (l *lease) Release(ctx context.Context) error {
	_, err := l.client.Delete(ctx, l.key)

	return err
}
