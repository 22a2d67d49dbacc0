package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
)

// AttendanceRepository implements attendance.Repository. Uniqueness of
// (session_id, student_id) is enforced by the table constraint.
type AttendanceRepository struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `id, session_id, student_id, student_name, student_location_lat, student_location_lng, distance_meters, marked_at`

func (r *AttendanceRepository) Insert(ctx context.Context, rec *attendance.Record) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance_records
		(session_id, student_id, student_name, student_location_lat, student_location_lng, distance_meters, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING id
	`, rec.SessionID, rec.StudentID, rec.StudentName, rec.StudentLocation.Latitude, rec.StudentLocation.Longitude, rec.DistanceMeters, rec.MarkedAt).Scan(&rec.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return attendance.ErrDuplicate
	}
	return err
}

func (r *AttendanceRepository) Exists(ctx context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id=$1 AND student_id=$2)
	`, sessionID, studentID).Scan(&ok)
	return ok, err
}

func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*attendance.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records WHERE session_id=$1
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*attendance.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records WHERE student_id=$1
		ORDER BY marked_at DESC, id DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*attendance.Record, error) {
	out := []*attendance.Record{}
	for rows.Next() {
		var rec attendance.Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.StudentLocation.Latitude, &rec.StudentLocation.Longitude, &rec.DistanceMeters, &rec.MarkedAt); err != nil {
			return nil, err
		}
		rec.MarkedAt = rec.MarkedAt.UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}
