package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveida/ticketing/internal/ledger"
)

type holdCall struct {
	eventID, seatID int64
	seconds         int
}

type mockLedger struct {
	holdResult ledger.HoldResult
	holdErr    error
	holds      []holdCall

	extendAt  time.Time
	extendErr error
	extends   []holdCall

	releaseErr error
	releases   []holdCall
}

func (m *mockLedger) Hold(_ context.Context, eventID, seatID int64, ttlSeconds int, _ string) (ledger.HoldResult, error) {
	m.holds = append(m.holds, holdCall{eventID, seatID, ttlSeconds})
	return m.holdResult, m.holdErr
}

func (m *mockLedger) Extend(_ context.Context, eventID, seatID int64, addSeconds int, _ string) (time.Time, error) {
	m.extends = append(m.extends, holdCall{eventID, seatID, addSeconds})
	return m.extendAt, m.extendErr
}

func (m *mockLedger) Release(_ context.Context, eventID, seatID int64, _ string) error {
	m.releases = append(m.releases, holdCall{eventID, seatID, 0})
	return m.releaseErr
}

func newReservationContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/reservations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestReservationCreateSuccess(t *testing.T) {
	expires := time.Now().Add(60 * time.Second)
	led := &mockLedger{holdResult: ledger.HoldResult{Success: true, ExpiresAt: expires}}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodPost, `{"eventId":1,"seatId":2,"holdSeconds":60}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["eventId"])
	assert.Equal(t, float64(2), body["seatId"])
	assert.Equal(t, float64(60), body["holdSeconds"])
	assert.Equal(t, expires.UTC().Format(time.RFC3339), body["expiresAt"])
	require.Len(t, led.holds, 1)
	assert.Equal(t, holdCall{1, 2, 60}, led.holds[0])
}

func TestReservationCreateClampsHoldSeconds(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		clamped int
	}{
		{"below minimum", `{"eventId":1,"seatId":2,"holdSeconds":1}`, 5},
		{"above maximum", `{"eventId":1,"seatId":2,"holdSeconds":9999}`, 120},
		{"omitted", `{"eventId":1,"seatId":2}`, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			led := &mockLedger{holdResult: ledger.HoldResult{Success: true, ExpiresAt: time.Now()}}
			h := NewReservationHandler(led)
			c, rec := newReservationContext(http.MethodPost, tc.in)
			require.NoError(t, h.Create(c))
			assert.Equal(t, http.StatusCreated, rec.Code)
			require.Len(t, led.holds, 1)
			assert.Equal(t, tc.clamped, led.holds[0].seconds)
		})
	}
}

func TestReservationCreateConflict(t *testing.T) {
	led := &mockLedger{holdResult: ledger.HoldResult{Success: false}}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodPost, `{"eventId":1,"seatId":2,"holdSeconds":30}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeReservationConflict, decodeBody(t, rec)["code"])
}

func TestReservationCreateAlreadySold(t *testing.T) {
	led := &mockLedger{holdErr: ledger.ErrAlreadySold}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodPost, `{"eventId":1,"seatId":2,"holdSeconds":30}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeAlreadySold, decodeBody(t, rec)["code"])
}

func TestReservationCreateValidation(t *testing.T) {
	h := NewReservationHandler(&mockLedger{})

	c, rec := newReservationContext(http.MethodPost, `{"eventId":0,"seatId":2}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeValidationFailed, decodeBody(t, rec)["code"])
}

func TestReservationCreateLedgerError(t *testing.T) {
	led := &mockLedger{holdErr: errors.New("redis down")}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodPost, `{"eventId":1,"seatId":2,"holdSeconds":30}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternalError, decodeBody(t, rec)["code"])
}

func setSeatParams(c echo.Context, eventID, seatID string) {
	c.SetParamNames("eventId", "seatId")
	c.SetParamValues(eventID, seatID)
}

func TestReservationExtendDefaultsToThirtySeconds(t *testing.T) {
	led := &mockLedger{extendAt: time.Now().Add(70 * time.Second)}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodPost, `{}`)
	setSeatParams(c, "1", "2")
	require.NoError(t, h.Extend(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, led.extends, 1)
	assert.Equal(t, holdCall{1, 2, 30}, led.extends[0])
	assert.Equal(t, led.extendAt.UTC().Format(time.RFC3339), decodeBody(t, rec)["expiresAt"])
}

func TestReservationExtendCustomSeconds(t *testing.T) {
	led := &mockLedger{extendAt: time.Now()}
	h := NewReservationHandler(led)

	c, _ := newReservationContext(http.MethodPost, `{"seconds":45}`)
	setSeatParams(c, "1", "2")
	require.NoError(t, h.Extend(c))

	require.Len(t, led.extends, 1)
	assert.Equal(t, 45, led.extends[0].seconds)
}

func TestReservationExtendExpired(t *testing.T) {
	led := &mockLedger{extendErr: ledger.ErrHoldExpired}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodPost, `{}`)
	setSeatParams(c, "1", "2")
	require.NoError(t, h.Extend(c))

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, CodeHoldExpired, decodeBody(t, rec)["code"])
}

func TestReservationReleaseSuccess(t *testing.T) {
	led := &mockLedger{}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodDelete, "")
	setSeatParams(c, "4", "9")
	require.NoError(t, h.Release(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, led.releases, 1)
	assert.Equal(t, int64(4), led.releases[0].eventID)
	assert.Equal(t, int64(9), led.releases[0].seatID)
}

func TestReservationReleaseExpired(t *testing.T) {
	led := &mockLedger{releaseErr: ledger.ErrHoldExpired}
	h := NewReservationHandler(led)

	c, rec := newReservationContext(http.MethodDelete, "")
	setSeatParams(c, "4", "9")
	require.NoError(t, h.Release(c))

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestReservationBadPathParams(t *testing.T) {
	h := NewReservationHandler(&mockLedger{})

	c, rec := newReservationContext(http.MethodDelete, "")
	setSeatParams(c, "abc", "9")
	require.NoError(t, h.Release(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
