package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/types"
)

const testSecret = "hunter2"

// recordingAdmitter remembers admitted items
type recordingAdmitter struct {
	items  []*types.WorkItem
	accept bool
}

func (a *recordingAdmitter) Admit(item *types.WorkItem) bool {
	a.items = append(a.items, item)
	return a.accept
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func prPayload(action string, id int64, number int, draft bool, additions int) string {
	return fmt.Sprintf(`{
		"action": %q,
		"pull_request": {
			"id": %d,
			"number": %d,
			"title": "Fix the flux capacitor",
			"draft": %v,
			"additions": %d,
			"deletions": 0,
			"user": {"login": "alice"}
		},
		"repository": {"full_name": "acme/widgets"}
	}`, action, id, number, draft, additions)
}

func newTestServer(t *testing.T, admitter Admitter) *httptest.Server {
	t.Helper()
	s, err := NewServer(admitter, nil, testSecret)
	require.NoError(t, err)
	mux := http.NewServeMux()
	s.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func deliver(t *testing.T, srv *httptest.Server, event, body, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-GitHub-Event", event)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServerRequiresSecret(t *testing.T) {
	_, err := NewServer(&recordingAdmitter{}, nil, "")
	assert.Error(t, err)
}

func TestWebhookAdmitsReviewablePR(t *testing.T) {
	admitter := &recordingAdmitter{accept: true}
	srv := newTestServer(t, admitter)

	body := prPayload("opened", 1042, 17, false, 120)
	resp := deliver(t, srv, "pull_request", body, sign(body))

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, admitter.items, 1)
	item := admitter.items[0]
	assert.Equal(t, int64(1042), item.ID)
	assert.Equal(t, 17, item.Number)
	assert.Equal(t, "acme/widgets#17", item.Locator)
	assert.Equal(t, 120, item.ChangedLines)
	assert.Equal(t, "alice", item.Author)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	admitter := &recordingAdmitter{accept: true}
	srv := newTestServer(t, admitter)

	body := prPayload("opened", 1, 1, false, 10)
	tests := []struct {
		name      string
		signature string
	}{
		{"missing", ""},
		{"wrong secret", "sha256=" + strings.Repeat("ab", 32)},
		{"not hex", "sha256=zzzz"},
		{"no prefix", strings.TrimPrefix(sign(body), "sha256=")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := deliver(t, srv, "pull_request", body, tt.signature)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.Empty(t, admitter.items, "unauthenticated deliveries must never reach the scheduler")
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	admitter := &recordingAdmitter{accept: true}
	srv := newTestServer(t, admitter)

	body := `{"zen": "Keep it logically awesome."}`
	resp := deliver(t, srv, "ping", body, sign(body))

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, admitter.items)
}

func TestWebhookSkipsUninterestingActions(t *testing.T) {
	admitter := &recordingAdmitter{accept: true}
	srv := newTestServer(t, admitter)

	for _, action := range []string{"closed", "labeled", "assigned"} {
		body := prPayload(action, 2, 2, false, 10)
		resp := deliver(t, srv, "pull_request", body, sign(body))
		assert.Equal(t, http.StatusOK, resp.StatusCode, "action %s", action)
	}
	assert.Empty(t, admitter.items)
}

func TestWebhookSkipsDrafts(t *testing.T) {
	admitter := &recordingAdmitter{accept: true}
	srv := newTestServer(t, admitter)

	body := prPayload("opened", 3, 3, true, 10)
	resp := deliver(t, srv, "pull_request", body, sign(body))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, admitter.items)
}

func TestWebhookDuplicateReturnsOK(t *testing.T) {
	admitter := &recordingAdmitter{accept: false} // scheduler refuses (duplicate)
	srv := newTestServer(t, admitter)

	body := prPayload("synchronize", 4, 4, false, 10)
	resp := deliver(t, srv, "pull_request", body, sign(body))

	assert.Equal(t, http.StatusOK, resp.StatusCode, "refused admission is not a delivery error")
	assert.Len(t, admitter.items, 1)
}

func TestWebhookMalformedPayload(t *testing.T) {
	admitter := &recordingAdmitter{accept: true}
	srv := newTestServer(t, admitter)

	body := `{"action": "opened", "pull_request": {`
	resp := deliver(t, srv, "pull_request", body, sign(body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Valid JSON but missing identity fields
	body = `{"action": "opened", "pull_request": {"id": 0, "number": 0}, "repository": {"full_name": "a/b"}}`
	resp = deliver(t, srv, "pull_request", body, sign(body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, admitter.items)
}

func TestWebhookMethodGuard(t *testing.T) {
	srv := newTestServer(t, &recordingAdmitter{})
	resp, err := http.Get(srv.URL + "/webhook")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &recordingAdmitter{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
