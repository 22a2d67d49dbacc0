package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appCheckin "github.com/geocheckin/geocheckin/internal/application/checkin"
	"github.com/geocheckin/geocheckin/internal/domain/attendance"
	"github.com/geocheckin/geocheckin/internal/domain/geo"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{"Student Name", "Student ID", "Location", "Distance (m)", "Time Marked"}

func (s *Server) markAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceMarkRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session_id")
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if !validID(req.StudentID) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "student_id required, at most 256 bytes")
		return
	}
	req.StudentName = strings.TrimSpace(req.StudentName)
	if len(req.StudentName) > maxIDLength {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "student_name longer than 256 bytes")
		return
	}
	if req.StudentLocationLat == nil || req.StudentLocationLng == nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "student_location_lat and student_location_lng required")
		return
	}
	if !validCoordinate(*req.StudentLocationLat, *req.StudentLocationLng) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "student location out of range")
		return
	}

	rec, err := s.checkinSvc.CheckIn(r.Context(), appCheckin.Input{
		SessionID:       sessionID,
		StudentID:       req.StudentID,
		StudentName:     req.StudentName,
		StudentLocation: geo.Coordinate{Latitude: *req.StudentLocationLat, Longitude: *req.StudentLocationLng},
	}, s.now())
	if err != nil {
		if rej, ok := appCheckin.AsRejection(err); ok {
			respondRejection(w, rej)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, newRecordResponse(rec))
}

func respondRejection(w http.ResponseWriter, rej *appCheckin.Rejection) {
	payload := map[string]interface{}{
		"error":   string(rej.Reason),
		"message": rej.Error(),
	}
	status := http.StatusConflict
	switch rej.Reason {
	case appCheckin.ReasonSessionNotFound:
		status = http.StatusNotFound
	case appCheckin.ReasonSessionClosed:
		payload["reason"] = string(rej.Closed)
	case appCheckin.ReasonOutOfRange:
		status = http.StatusUnprocessableEntity
		payload["distance_meters"] = rej.DistanceMeters
	}
	respondJSON(w, status, payload)
}

func (s *Server) listSessionAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	records, err := s.querySvc.SessionAttendance(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"count":      len(records),
		"records":    newRecordResponses(records),
	})
}

func (s *Server) listStudentAttendance(w http.ResponseWriter, r *http.Request) {
	studentID := strings.TrimSpace(chi.URLParam(r, "studentId"))
	if !validID(studentID) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid studentId")
		return
	}
	records, err := s.querySvc.StudentHistory(r.Context(), studentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID,
		"records":    newRecordResponses(records),
	})
}

// exportSessionAttendance downloads a session's roster as CSV.
func (s *Server) exportSessionAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	if _, err := s.sessionSvc.Get(r.Context(), id); err != nil {
		s.respondSessionError(w, err)
		return
	}
	records, err := s.querySvc.SessionAttendance(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	filename := fmt.Sprintf("attendance-%s-%s.csv", id, s.now().Format("2006-01-02-1504"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for _, rec := range records {
		_ = cw.Write(exportRow(rec))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("csv export truncated")
	}
}

func exportRow(rec *attendance.Record) []string {
	return []string{
		rec.StudentName,
		rec.StudentID,
		formatFloat(rec.StudentLocation.Latitude) + "," + formatFloat(rec.StudentLocation.Longitude),
		strconv.FormatFloat(rec.DistanceMeters, 'f', 1, 64),
		rec.MarkedAt.UTC().Format(exportTimeLayout),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
