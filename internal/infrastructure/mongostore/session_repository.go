package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
	"github.com/geocheckin/geocheckin/internal/domain/session"
)

// sessionDoc keeps the flat field names of the sessions collection.
type sessionDoc struct {
	Seq             int64     `bson:"seq,omitempty"`
	SessionID       string    `bson:"session_id"`
	HostID          string    `bson:"host_id"`
	HostLocationLat float64   `bson:"host_location_lat"`
	HostLocationLng float64   `bson:"host_location_lng"`
	CreatedAt       time.Time `bson:"created_at"`
	ExpiresAt       time.Time `bson:"expires_at"`
	IsActive        bool      `bson:"is_active"`
}

func (d *sessionDoc) toDomain() (*session.Session, error) {
	id, err := uuid.Parse(d.SessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored session id %q: %w", d.SessionID, err)
	}
	return &session.Session{
		ID:           d.Seq,
		SessionID:    id,
		HostID:       d.HostID,
		HostLocation: geo.Coordinate{Latitude: d.HostLocationLat, Longitude: d.HostLocationLng},
		CreatedAt:    d.CreatedAt.UTC(),
		ExpiresAt:    d.ExpiresAt.UTC(),
		IsActive:     d.IsActive,
	}, nil
}

// SessionRepository implements session.Repository.
type SessionRepository struct {
	store *Store
	coll  *mongo.Collection
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	seq, err := r.store.nextSeq(ctx, collSessions)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, sessionDoc{
		Seq:             seq,
		SessionID:       s.SessionID.String(),
		HostID:          s.HostID,
		HostLocationLat: s.HostLocation.Latitude,
		HostLocationLng: s.HostLocation.Longitude,
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
		IsActive:        s.IsActive,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("session %s already exists: %w", s.SessionID, err)
		}
		return err
	}
	s.ID = seq
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	var doc sessionDoc
	err := r.coll.FindOne(ctx, bson.M{"session_id": sessionID.String()}).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain()
}

func (r *SessionRepository) Deactivate(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	var doc sessionDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"session_id": sessionID.String()},
		bson.M{"$set": bson.M{"is_active": false}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain()
}
