package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ShipNotify/internal/api/httpapi/webhookauth"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testSecret = "dev-secret"

var testNow = time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)

type fakeWebhooks struct {
	got []webhooks.Update
	res webhooks.Result
	err error
}

func (f *fakeWebhooks) HandleTrackingUpdate(ctx context.Context, upd webhooks.Update) (webhooks.Result, error) {
	f.got = append(f.got, upd)
	return f.res, f.err
}

func newWebhookRouter(svc *fakeWebhooks, testMode bool) http.Handler {
	return NewRouter(Options{
		Webhooks:        svc,
		WebhookSecret:   testSecret,
		WebhookTestMode: testMode,
		Now:             func() time.Time { return testNow },
	})
}

func signedRequest(target, body string, ts time.Time, secret string) *http.Request {
	tsHeader := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(webhookauth.TimestampHeader, tsHeader)
	req.Header.Set(webhookauth.SignatureHeader, webhookauth.SignHex(secret, tsHeader, []byte(body)))
	return req
}

const transitBody = `{"event":"track_updated","test":false,"data":{"carrier":"USPS","tracking_number":" 9400 ","tracking_status":{"status":"TRANSIT","status_details":"Arrived at facility","status_date":"2026-02-25T11:00:00Z","location":{"city":"Austin","state":"TX"}}}}`

func TestShippoWebhook_Valid(t *testing.T) {
	svc := &fakeWebhooks{res: webhooks.Result{Outcome: webhooks.OutcomePublished, Phase: models.PhaseShipped}}
	h := newWebhookRouter(svc, false)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", transitBody, testNow, testSecret))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"status":"published","phase":"SHIPPED"}`, w.Body.String())

	require.Len(t, svc.got, 1)
	upd := svc.got[0]
	require.Equal(t, "usps", upd.Carrier)
	require.Equal(t, "9400", upd.TrackingNumber)
	require.Equal(t, "TRANSIT", upd.Result.Status)
	require.Equal(t, "webhook", upd.Source)
	require.Len(t, upd.Result.Events, 1)
	require.Equal(t, "Austin, TX", *upd.Result.Events[0].Location)
}

func TestShippoWebhook_SignatureErrors(t *testing.T) {
	svc := &fakeWebhooks{}
	h := newWebhookRouter(svc, false)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", transitBody, testNow, "WRONG"))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", transitBody, testNow.Add(-10*time.Minute), testSecret))
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shippo", strings.NewReader(transitBody))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Empty(t, svc.got)
}

func TestShippoWebhook_TestMode(t *testing.T) {
	svc := &fakeWebhooks{res: webhooks.Result{Outcome: webhooks.OutcomeRecorded, Phase: models.PhaseShipped}}

	// test=1 без включённого режима всё равно требует подпись.
	w := httptest.NewRecorder()
	newWebhookRouter(svc, false).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/shippo?test=1", strings.NewReader(transitBody)))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	newWebhookRouter(svc, true).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/shippo?test=1", strings.NewReader(transitBody)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, svc.got, 1)
}

func TestShippoWebhook_BadPayloads(t *testing.T) {
	svc := &fakeWebhooks{}
	h := newWebhookRouter(svc, false)

	for name, body := range map[string]string{
		"malformed":        `{"event":`,
		"missing tracking": `{"event":"track_updated","data":{"carrier":"usps","tracking_status":{"status":"DELIVERED"}}}`,
		"blank tracking":   `{"event":"track_updated","data":{"tracking_number":"   "}}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", body, testNow, testSecret))
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	require.Empty(t, svc.got)
}

func TestShippoWebhook_BodyTooLarge(t *testing.T) {
	h := newWebhookRouter(&fakeWebhooks{}, false)
	body := `{"event":"track_updated","pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", body, testNow, testSecret))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestShippoWebhook_OtherEventIgnored(t *testing.T) {
	svc := &fakeWebhooks{}
	h := newWebhookRouter(svc, false)
	body := `{"event":"transaction_created","data":{"tracking_number":"9400","tracking_status":{"status":"DELIVERED"}}}`

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", body, testNow, testSecret))
	require.Equal(t, http.StatusOK, w.Code)

	var res webhooks.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, webhooks.OutcomeIgnored, res.Outcome)
	require.Empty(t, svc.got)

	// У других событий трек-номера может не быть вовсе.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest("/api/webhooks/shippo", `{"event":"transaction_updated","data":{"object_id":"abc"}}`, testNow, testSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, webhooks.OutcomeIgnored, res.Outcome)
	require.Empty(t, svc.got)
}

func TestShippoWebhook_ServiceErrors(t *testing.T) {
	svc := &fakeWebhooks{err: errors.New("kafka down")}
	w := httptest.NewRecorder()
	newWebhookRouter(svc, false).ServeHTTP(w, signedRequest("/api/webhooks/shippo", transitBody, testNow, testSecret))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	svc = &fakeWebhooks{err: errors.Wrap(webhooks.ErrInvalidUpdate, "bad")}
	w = httptest.NewRecorder()
	newWebhookRouter(svc, false).ServeHTTP(w, signedRequest("/api/webhooks/shippo", transitBody, testNow, testSecret))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
