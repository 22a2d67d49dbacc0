package boltdb

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
)

// AttendanceRepository implements attendance.Repository.
//
// Layout:
//
//	attendance/<session id>/students/<student id> -> seq
//	attendance/<session id>/records/<seq>         -> record
//	attendance_students/<student id>/<marked_at><seq> -> record
type AttendanceRepository struct {
	db *bolt.DB
}

type storedRecord struct {
	Seq int64 `json:"seq"`
	attendance.Record
}

func (r *AttendanceRepository) Insert(_ context.Context, rec *attendance.Record) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketAttendance)
		sb, err := root.CreateBucketIfNotExists(rec.SessionID[:])
		if err != nil {
			return err
		}
		students, err := sb.CreateBucketIfNotExists(bucketStudents)
		if err != nil {
			return err
		}
		if students.Get([]byte(rec.StudentID)) != nil {
			return attendance.ErrDuplicate
		}
		records, err := sb.CreateBucketIfNotExists(bucketRecords)
		if err != nil {
			return err
		}
		byStudent, err := tx.Bucket(bucketAttendanceStudents).CreateBucketIfNotExists([]byte(rec.StudentID))
		if err != nil {
			return err
		}

		seq, err := root.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(storedRecord{Seq: int64(seq), Record: *rec})
		if err != nil {
			return err
		}
		if err := students.Put([]byte(rec.StudentID), itob(seq)); err != nil {
			return err
		}
		if err := records.Put(itob(seq), data); err != nil {
			return err
		}
		if err := byStudent.Put(timeKey(rec.MarkedAt, seq), data); err != nil {
			return err
		}
		rec.ID = int64(seq)
		return nil
	})
}

func (r *AttendanceRepository) Exists(_ context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	var ok bool
	err := r.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketAttendance).Bucket(sessionID[:])
		if sb == nil {
			return nil
		}
		if students := sb.Bucket(bucketStudents); students != nil {
			ok = students.Get([]byte(studentID)) != nil
		}
		return nil
	})
	return ok, err
}

func (r *AttendanceRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*attendance.Record, error) {
	out := []*attendance.Record{}
	err := r.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketAttendance).Bucket(sessionID[:])
		if sb == nil {
			return nil
		}
		records := sb.Bucket(bucketRecords)
		if records == nil {
			return nil
		}
		return records.ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (r *AttendanceRepository) ListByStudent(_ context.Context, studentID string, limit int) ([]*attendance.Record, error) {
	out := []*attendance.Record{}
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttendanceStudents).Bucket([]byte(studentID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Prev() {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func decodeRecord(data []byte) (*attendance.Record, error) {
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	rec := stored.Record
	rec.ID = stored.Seq
	return &rec, nil
}
