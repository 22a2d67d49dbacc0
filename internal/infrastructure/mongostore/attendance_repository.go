package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
	"github.com/geocheckin/geocheckin/internal/domain/geo"
)

// recordDoc keeps the flat field names of the attendance collection.
type recordDoc struct {
	Seq                int64     `bson:"seq,omitempty"`
	SessionID          string    `bson:"session_id"`
	StudentID          string    `bson:"student_id"`
	StudentName        string    `bson:"student_name"`
	StudentLocationLat float64   `bson:"student_location_lat"`
	StudentLocationLng float64   `bson:"student_location_lng"`
	DistanceMeters     float64   `bson:"distance_meters"`
	MarkedAt           time.Time `bson:"marked_at"`
}

func (d *recordDoc) toDomain() (*attendance.Record, error) {
	id, err := uuid.Parse(d.SessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored session id %q: %w", d.SessionID, err)
	}
	return &attendance.Record{
		ID:              d.Seq,
		SessionID:       id,
		StudentID:       d.StudentID,
		StudentName:     d.StudentName,
		StudentLocation: geo.Coordinate{Latitude: d.StudentLocationLat, Longitude: d.StudentLocationLng},
		DistanceMeters:  d.DistanceMeters,
		MarkedAt:        d.MarkedAt.UTC(),
	}, nil
}

// AttendanceRepository implements attendance.Repository. The unique
// (session_id, student_id) index arbitrates concurrent inserts.
type AttendanceRepository struct {
	store *Store
	coll  *mongo.Collection
}

func (r *AttendanceRepository) Insert(ctx context.Context, rec *attendance.Record) error {
	seq, err := r.store.nextSeq(ctx, collAttendance)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, recordDoc{
		Seq:                seq,
		SessionID:          rec.SessionID.String(),
		StudentID:          rec.StudentID,
		StudentName:        rec.StudentName,
		StudentLocationLat: rec.StudentLocation.Latitude,
		StudentLocationLng: rec.StudentLocation.Longitude,
		DistanceMeters:     rec.DistanceMeters,
		MarkedAt:           rec.MarkedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return attendance.ErrDuplicate
		}
		return err
	}
	rec.ID = seq
	return nil
}

func (r *AttendanceRepository) Exists(ctx context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx,
		bson.M{"session_id": sessionID.String(), "student_id": studentID},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*attendance.Record, error) {
	return r.find(ctx,
		bson.M{"session_id": sessionID.String()},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}),
	)
}

func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*attendance.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "marked_at", Value: -1}, {Key: "seq", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"student_id": studentID}, opts)
}

func (r *AttendanceRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*attendance.Record, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*attendance.Record, 0, len(docs))
	for i := range docs {
		rec, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
