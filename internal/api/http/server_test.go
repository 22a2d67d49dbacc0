package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAttendance "github.com/geocheckin/geocheckin/internal/application/attendance"
	appCheckin "github.com/geocheckin/geocheckin/internal/application/checkin"
	appQuery "github.com/geocheckin/geocheckin/internal/application/query"
	appSession "github.com/geocheckin/geocheckin/internal/application/session"
	"github.com/geocheckin/geocheckin/internal/domain/geo"
	"github.com/geocheckin/geocheckin/internal/domain/session"
	"github.com/geocheckin/geocheckin/internal/infrastructure/memory"
	"github.com/geocheckin/geocheckin/internal/infrastructure/sse"
)

var campus = geo.Coordinate{Latitude: 21.96309, Longitude: 70.77614}

const dashboardOrigin = "http://localhost:5173"

func northOf(c geo.Coordinate, meters float64) geo.Coordinate {
	return geo.Coordinate{
		Latitude:  c.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi,
		Longitude: c.Longitude,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.Nop()
	hub := sse.NewHub(EncodeRecord)
	t.Cleanup(hub.Stop)

	sessions := appSession.NewService(memory.NewSessionRepository(), logger)
	ledger := appAttendance.NewService(memory.NewAttendanceRepository(), hub, logger)
	return NewServer(
		sessions,
		appCheckin.NewService(sessions, ledger, logger),
		appQuery.NewService(ledger),
		hub,
		campus,
		[]string{dashboardOrigin},
		logger,
	)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createSession(t *testing.T, h http.Handler, body interface{}) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeMap(t, rec)["session_id"].(string)
}

func mark(sessionID, studentID string, at geo.Coordinate) map[string]interface{} {
	return map[string]interface{}{
		"session_id":           sessionID,
		"student_id":           studentID,
		"student_name":         "Student " + studentID,
		"student_location_lat": at.Latitude,
		"student_location_lng": at.Longitude,
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t).Router()
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeMap(t, rec)["status"])
}

func TestCheckInScenario(t *testing.T) {
	h := newTestServer(t).Router()

	rec := do(t, h, http.MethodPost, "/v1/sessions", map[string]interface{}{"host_id": "host-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeMap(t, rec)
	assert.Equal(t, campus.Latitude, created["host_location_lat"])
	assert.Equal(t, campus.Longitude, created["host_location_lng"])
	assert.Equal(t, true, created["is_active"])
	assert.Equal(t, true, created["open_for_check_in"])
	assert.Greater(t, created["seconds_remaining"].(float64), 290.0)
	sid := created["session_id"].(string)

	rec = do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "A", campus))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	admitted := decodeMap(t, rec)
	assert.Equal(t, "A", admitted["student_id"])
	assert.Equal(t, "Student A", admitted["student_name"])
	assert.Equal(t, 0.0, admitted["distance_meters"])

	rec = do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "A", campus))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyMarked", decodeMap(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "B", northOf(campus, 600)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "OutOfRange", body["error"])
	assert.InDelta(t, 600.0, body["distance_meters"].(float64), 0.01)

	rec = do(t, h, http.MethodGet, "/v1/attendance/session/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeMap(t, rec)
	assert.Equal(t, 1.0, list["count"])
	records := list["records"].([]interface{})
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].(map[string]interface{})["student_id"])

	rec = do(t, h, http.MethodPost, "/v1/sessions/"+sid+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ended := decodeMap(t, rec)
	assert.Equal(t, false, ended["is_active"])
	assert.Equal(t, false, ended["open_for_check_in"])

	rec = do(t, h, http.MethodPost, "/v1/sessions/"+sid+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "C", campus))
	require.Equal(t, http.StatusConflict, rec.Code)
	body = decodeMap(t, rec)
	assert.Equal(t, "SessionClosed", body["error"])
	assert.Equal(t, "Inactive", body["reason"])

	rec = do(t, h, http.MethodGet, "/v1/attendance/student/A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeMap(t, rec)
	assert.Equal(t, "A", history["student_id"])
	assert.Len(t, history["records"].([]interface{}), 1)

	rec = do(t, h, http.MethodGet, "/v1/attendance/student/B", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeMap(t, rec)["records"])
}

func TestCheckInAfterExpiry(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Router()
	sid := createSession(t, h, map[string]interface{}{
		"host_id":           "host-1",
		"host_location_lat": -33.8688,
		"host_location_lng": 151.2093,
	})

	srv.now = func() time.Time { return time.Now().UTC().Add(session.Window + time.Second) }

	rec := do(t, h, http.MethodGet, "/v1/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeMap(t, rec)
	assert.Equal(t, true, view["is_active"])
	assert.Equal(t, false, view["open_for_check_in"])
	assert.Equal(t, 0.0, view["seconds_remaining"])

	rec = do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "A", geo.Coordinate{Latitude: -33.8688, Longitude: 151.2093}))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "SessionClosed", body["error"])
	assert.Equal(t, "Expired", body["reason"])
	assert.Equal(t, "session expired", body["message"])
}

func TestCheckInUnknownSession(t *testing.T) {
	h := newTestServer(t).Router()
	rec := do(t, h, http.MethodPost, "/v1/attendance", mark("7d0f5a1e-4a59-4d1e-9d0c-2f1a3c9b8e11", "A", campus))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SessionNotFound", decodeMap(t, rec)["error"])
}

func TestInvalidInput(t *testing.T) {
	h := newTestServer(t).Router()
	sid := createSession(t, h, map[string]interface{}{"host_id": "host-1"})

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"malformed json", http.MethodPost, "/v1/sessions", "{", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/sessions", `{"host_id":"h","room":"1"}`, http.StatusBadRequest},
		{"missing host", http.MethodPost, "/v1/sessions", `{"host_id":"  "}`, http.StatusBadRequest},
		{"half a location", http.MethodPost, "/v1/sessions", `{"host_id":"h","host_location_lat":1}`, http.StatusBadRequest},
		{"latitude out of range", http.MethodPost, "/v1/sessions", `{"host_id":"h","host_location_lat":91,"host_location_lng":0}`, http.StatusBadRequest},
		{"bad session id", http.MethodPost, "/v1/attendance", mark("nope", "A", campus), http.StatusBadRequest},
		{"missing student", http.MethodPost, "/v1/attendance", mark(sid, "", campus), http.StatusBadRequest},
		{"missing coordinates", http.MethodPost, "/v1/attendance", `{"session_id":"` + sid + `","student_id":"A"}`, http.StatusBadRequest},
		{"longitude out of range", http.MethodPost, "/v1/attendance", mark(sid, "A", geo.Coordinate{Latitude: 0, Longitude: 181}), http.StatusBadRequest},
		{"get bad uuid", http.MethodGet, "/v1/sessions/xyz", nil, http.StatusBadRequest},
		{"get unknown", http.MethodGet, "/v1/sessions/7d0f5a1e-4a59-4d1e-9d0c-2f1a3c9b8e11", nil, http.StatusNotFound},
		{"end unknown", http.MethodPost, "/v1/sessions/7d0f5a1e-4a59-4d1e-9d0c-2f1a3c9b8e11/end", nil, http.StatusNotFound},
		{"list bad uuid", http.MethodGet, "/v1/attendance/session/xyz", nil, http.StatusBadRequest},
		{"export unknown", http.MethodGet, "/v1/attendance/session/7d0f5a1e-4a59-4d1e-9d0c-2f1a3c9b8e11/export", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeMap(t, rec)["error"])
		})
	}

	rec := do(t, h, http.MethodGet, "/v1/attendance/session/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decodeMap(t, rec)["count"], "rejected input must not create records")
}

func TestExportSessionAttendance(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Router()
	sid := createSession(t, h, map[string]interface{}{"host_id": "host-1"})

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "A", campus)).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "B", northOf(campus, 123.46))).Code)

	srv.now = func() time.Time { return time.Date(2026, 3, 2, 9, 7, 0, 0, time.UTC) }
	rec := do(t, h, http.MethodGet, "/v1/attendance/session/"+sid+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="attendance-`+sid+`-2026-03-02-0907.csv"`, rec.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Student Name", "Student ID", "Location", "Distance (m)", "Time Marked"}, rows[0])

	assert.Equal(t, "Student A", rows[1][0])
	assert.Equal(t, "A", rows[1][1])
	assert.Equal(t, "21.96309,70.77614", rows[1][2])
	assert.Equal(t, "0.0", rows[1][3])
	_, err = time.Parse(exportTimeLayout, rows[1][4])
	assert.NoError(t, err)

	assert.Equal(t, "B", rows[2][1])
	assert.Equal(t, "123.5", rows[2][3])
}

func TestStreamSession(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	h := srv.Router()

	sid := createSession(t, h, map[string]interface{}{"host_id": "host-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/sessions/"+sid+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "A", campus)).Code)

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, sse.EventAttendance, event)

	var msg sse.Message
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	var got recordResponse
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "A", got.StudentID)
	assert.Equal(t, sid, got.SessionID.String())
	assert.Equal(t, campus.Latitude, got.StudentLocationLat)
}

func TestStreamUnknownSession(t *testing.T) {
	h := newTestServer(t).Router()
	rec := do(t, h, http.MethodGet, "/v1/sessions/7d0f5a1e-4a59-4d1e-9d0c-2f1a3c9b8e11/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t).Router()

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v1/attendance", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight(dashboardOrigin)
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, dashboardOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	rec = preflight("https://elsewhere.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", dashboardOrigin)
	get := httptest.NewRecorder()
	h.ServeHTTP(get, req)
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, dashboardOrigin, get.Header().Get("Access-Control-Allow-Origin"))
}

func TestInputSizeLimits(t *testing.T) {
	h := newTestServer(t).Router()
	sid := createSession(t, h, map[string]interface{}{"host_id": "host-1"})
	long := strings.Repeat("x", maxIDLength+1)

	longName := mark(sid, "A", campus)
	longName["student_name"] = long
	hugeBody := mark(sid, "A", campus)
	hugeBody["student_name"] = strings.Repeat("x", maxBodyBytes)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"long host id", http.MethodPost, "/v1/sessions", map[string]interface{}{"host_id": long}},
		{"long student id", http.MethodPost, "/v1/attendance", mark(sid, long, campus)},
		{"long student name", http.MethodPost, "/v1/attendance", longName},
		{"body over limit", http.MethodPost, "/v1/attendance", hugeBody},
		{"long student id in history", http.MethodGet, "/v1/attendance/student/" + long, nil},
		{"long stream client id", http.MethodGet, "/v1/sessions/" + sid + "/stream?client_id=" + long, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "INVALID_PARAM", decodeMap(t, rec)["error"])
		})
	}

	rec := do(t, h, http.MethodGet, "/v1/attendance/session/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decodeMap(t, rec)["count"])

	ok := mark(sid, strings.Repeat("y", maxIDLength), campus)
	rec = do(t, h, http.MethodPost, "/v1/attendance", ok)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// openStream connects to a session stream and waits until it is registered.
func openStream(t *testing.T, baseURL, sessionID, clientID string, header http.Header) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := baseURL + "/v1/sessions/" + sessionID + "/stream"
	if clientID != "" {
		url += "?client_id=" + clientID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)
	return reader
}

// nextStudent reads the next attendance event and returns its student id.
func nextStudent(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err, "stream closed before the next event")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg sse.Message
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data: "))), &msg))
		var rec recordResponse
		require.NoError(t, json.Unmarshal(msg.Data, &rec))
		return rec.StudentID
	}
}

func TestConcurrentStreamsStayOpen(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	h := srv.Router()

	t.Run("same client id on two sessions", func(t *testing.T) {
		sidA := createSession(t, h, map[string]interface{}{"host_id": "host-a"})
		sidB := createSession(t, h, map[string]interface{}{"host_id": "host-b"})

		streamA := openStream(t, ts.URL, sidA, "dashboard", nil)
		streamB := openStream(t, ts.URL, sidB, "dashboard", nil)

		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/attendance", mark(sidA, "A", campus)).Code)
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/attendance", mark(sidB, "B", campus)).Code)

		assert.Equal(t, "A", nextStudent(t, streamA))
		assert.Equal(t, "B", nextStudent(t, streamB))
	})

	t.Run("two tabs behind one proxy", func(t *testing.T) {
		sid := createSession(t, h, map[string]interface{}{"host_id": "host-c"})
		proxied := http.Header{"X-Real-Ip": []string{"10.0.0.7"}}

		first := openStream(t, ts.URL, sid, "", proxied)
		second := openStream(t, ts.URL, sid, "", proxied)

		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/attendance", mark(sid, "C", campus)).Code)

		assert.Equal(t, "C", nextStudent(t, first))
		assert.Equal(t, "C", nextStudent(t, second))
	})
}
