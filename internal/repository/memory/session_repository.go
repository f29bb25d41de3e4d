package memory

import (
	"time"

	"ai-supportdesk-be/pkg/dialogue"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps live dialogue sessions in process memory. The
// database holds the durable transcript; this cache holds the working
// state between turns.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository() *SessionRepository {
	// Default expiration of 1 hour, purging expired sessions every 10
	// minutes.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(session *dialogue.Session) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*dialogue.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*dialogue.Session), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}
