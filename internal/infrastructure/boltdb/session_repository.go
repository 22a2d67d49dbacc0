package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/geocheckin/geocheckin/internal/domain/session"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	db *bolt.DB
}

func (r *SessionRepository) Create(_ context.Context, s *session.Session) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get(s.SessionID[:]) != nil {
			return fmt.Errorf("session %s already exists", s.SessionID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		s.ID = int64(seq)
		return putSession(b, s)
	})
}

func (r *SessionRepository) GetByID(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	var out *session.Session
	err := r.db.View(func(tx *bolt.Tx) error {
		s, err := getSession(tx.Bucket(bucketSessions), sessionID)
		out = s
		return err
	})
	return out, err
}

func (r *SessionRepository) Deactivate(_ context.Context, sessionID uuid.UUID) (*session.Session, error) {
	var out *session.Session
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		s, err := getSession(b, sessionID)
		if err != nil || s == nil {
			return err
		}
		if s.IsActive {
			s.IsActive = false
			if err := putSession(b, s); err != nil {
				return err
			}
		}
		out = s
		return nil
	})
	return out, err
}

// storedSession keeps the sequence id, which the domain type hides from JSON.
type storedSession struct {
	Seq int64 `json:"seq"`
	session.Session
}

func putSession(b *bolt.Bucket, s *session.Session) error {
	data, err := json.Marshal(storedSession{Seq: s.ID, Session: *s})
	if err != nil {
		return err
	}
	return b.Put(s.SessionID[:], data)
}

func getSession(b *bolt.Bucket, sessionID uuid.UUID) (*session.Session, error) {
	data := b.Get(sessionID[:])
	if data == nil {
		return nil, nil
	}
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	s := stored.Session
	s.ID = stored.Seq
	return &s, nil
}
