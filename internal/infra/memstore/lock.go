package memstore

import (
	"context"
	"sync"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.Locker = (*Locker)(nil)

type lease struct {
	token   string
	expires time.Time
}

// Locker is a process-local lock table with TTL leases.
type Locker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewLocker() *Locker {
	return &Locker{leases: make(map[string]lease), now: time.Now}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", domain.ErrLockNotAcquired
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
