package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemf/photo-review/internal/api"
	"github.com/nemf/photo-review/internal/claims"
	"github.com/nemf/photo-review/internal/config"
	"github.com/nemf/photo-review/internal/handlers"
	"github.com/nemf/photo-review/internal/history"
	"github.com/nemf/photo-review/internal/linkage"
	"github.com/nemf/photo-review/internal/lookup"
	"github.com/nemf/photo-review/internal/mo"
	"github.com/nemf/photo-review/internal/models"
	"github.com/nemf/photo-review/internal/navigation"
	"github.com/nemf/photo-review/internal/store"
	"github.com/nemf/photo-review/internal/testhelpers"
	"github.com/nemf/photo-review/internal/users"
)

type env struct {
	router *gin.Engine
	store  *store.Store
	claims *claims.Manager
}

func newTestEnv(t *testing.T, items map[string]*models.Item) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testhelpers.NewTestLogger()
	st := testhelpers.NewStore(items)
	cm := claims.NewManager(10*time.Minute, 30*time.Minute)
	tr := history.NewTracker()
	nav := navigation.NewEngine(st, cm, tr)
	link := linkage.NewEngine(st, log)

	reg := users.NewInMemory(map[string]*users.Account{
		"alice": {Password: "pw", APIKey: "alice-key"},
		"bob":   {Password: "pw"},
	}, log)

	tables, err := lookup.LoadTables("")
	require.NoError(t, err)

	h := handlers.New(handlers.Deps{
		Store:   st,
		Claims:  cm,
		History: tr,
		Nav:     nav,
		Linkage: link,
		Users:   reg,
		Lookup:  lookup.NewService(tables, nil, log),
		MO:      mo.NewFactory("", 0, log),
		Log:     log,
	})

	router := api.NewRouter(h, reg, config.ServerConfig{}, log)
	return &env{router: router, store: st, claims: cm}
}

func (e *env) request(t *testing.T, method, path, user, body string) (*httptest.ResponseRecorder, gin.H) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.SetBasicAuth(user, "pw")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var parsed gin.H
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	}
	return w, parsed
}

func twoImages() map[string]*models.Item {
	return map[string]*models.Item{
		"a.jpg": testhelpers.Item("a.jpg", 1, 0, false),
		"b.jpg": testhelpers.Item("b.jpg", 2, 0, false),
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t, nil)

	w, _ := e.request(t, http.MethodGet, "/api/whoami", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	w, _ = e.request(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code, "health is open")
}

func TestWhoami(t *testing.T) {
	e := newTestEnv(t, nil)

	w, resp := e.request(t, http.MethodGet, "/api/whoami", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", resp["username"])
	assert.Equal(t, true, resp["has_api_key"])

	_, resp = e.request(t, http.MethodGet, "/api/whoami", "bob", "")
	assert.Equal(t, false, resp["has_api_key"])
}

func TestListImages(t *testing.T) {
	e := newTestEnv(t, twoImages())
	e.claims.Acquire("a.jpg", "bob", false)

	w, _ := e.request(t, http.MethodGet, "/api/images", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []gin.H
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "a.jpg", list[0]["filename"], "priority order")
	assert.Equal(t, "bob", list[0]["claimed_by"])
	assert.Equal(t, false, list[0]["is_mine"])
}

func TestGetImage_ClaimsOnView(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, resp := e.request(t, http.MethodGet, "/api/image/a.jpg?add_to_history=true", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	claim := resp["claim"].(map[string]any)
	assert.Equal(t, true, claim["success"])
	assert.Equal(t, "alice", claim["claimed_by"])
	assert.Equal(t, true, claim["is_mine"])
	assert.Equal(t, "alice", e.claims.Holder("a.jpg"))

	// A second viewer sees the claim but does not get it.
	w, resp = e.request(t, http.MethodGet, "/api/image/a.jpg?add_to_history=true", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	claim = resp["claim"].(map[string]any)
	assert.Equal(t, false, claim["success"])
	assert.Equal(t, "alice", claim["claimed_by"])
	assert.Contains(t, claim["message"], "claimed by alice")
}

func TestGetImage_PeekDoesNotClaim(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, resp := e.request(t, http.MethodGet, "/api/image/a.jpg", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	claim := resp["claim"].(map[string]any)
	assert.Equal(t, true, claim["success"])
	assert.Empty(t, e.claims.Holder("a.jpg"))
}

func TestGetImage_NotFound(t *testing.T) {
	e := newTestEnv(t, twoImages())
	w, _ := e.request(t, http.MethodGet, "/api/image/missing.jpg", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHeartbeatAndRelease(t *testing.T) {
	e := newTestEnv(t, twoImages())
	e.claims.Acquire("a.jpg", "alice", false)

	w, resp := e.request(t, http.MethodPost, "/api/image/a.jpg/heartbeat", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])

	_, resp = e.request(t, http.MethodPost, "/api/image/a.jpg/heartbeat", "bob", "")
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "alice", resp["claimed_by"])

	_, resp = e.request(t, http.MethodPost, "/api/image/a.jpg/release", "alice", "")
	assert.Equal(t, true, resp["released"])
	assert.Empty(t, e.claims.Holder("a.jpg"))
}

func TestReview(t *testing.T) {
	e := newTestEnv(t, twoImages())
	e.claims.Acquire("a.jpg", "alice", false)

	w, resp := e.request(t, http.MethodPost, "/api/image/a.jpg/review", "alice",
		`{"status": "approved", "notes": "fine"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])

	img, _ := e.store.Get("a.jpg")
	assert.Equal(t, models.StatusApproved, img.Review.Status)
	assert.Equal(t, "alice", img.Review.Reviewer)
	assert.Empty(t, e.claims.Holder("a.jpg"), "settled claim released")

	summary := resp["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["approved"])
}

func TestReview_HeldByOther(t *testing.T) {
	e := newTestEnv(t, twoImages())
	e.claims.Acquire("a.jpg", "bob", false)

	w, resp := e.request(t, http.MethodPost, "/api/image/a.jpg/review", "alice",
		`{"status": "approved"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "bob", resp["claimed_by"])
}

func TestReview_InvalidStatus(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, _ := e.request(t, http.MethodPost, "/api/image/a.jpg/review", "alice",
		`{"status": "banana"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReview_PropagatesAndReleasesGroup(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, _ := e.request(t, http.MethodPost, "/api/link/a.jpg", "alice", `{"target": "b.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice", e.claims.Holder("b.jpg"))

	w, _ = e.request(t, http.MethodPost, "/api/image/a.jpg/review", "alice",
		`{"status": "excluded"}`)
	require.Equal(t, http.StatusOK, w.Code)

	b, _ := e.store.Get("b.jpg")
	assert.Equal(t, models.StatusExcluded, b.Review.Status)
	assert.Equal(t, "alice:propagated_from:a.jpg", b.Review.Reviewer)
	assert.Empty(t, e.claims.Holder("b.jpg"), "linked claims released too")
}

func TestLink(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, resp := e.request(t, http.MethodPost, "/api/link/a.jpg", "alice", `{"target": "b.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []any{"b.jpg"}, resp["linked_images"])

	// Linking claims both ends.
	assert.Equal(t, "alice", e.claims.Holder("a.jpg"))
	assert.Equal(t, "alice", e.claims.Holder("b.jpg"))
}

func TestLink_TargetClaimedElsewhere(t *testing.T) {
	e := newTestEnv(t, twoImages())
	e.claims.Acquire("b.jpg", "bob", false)

	w, resp := e.request(t, http.MethodPost, "/api/link/a.jpg", "alice", `{"target": "b.jpg"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	failed := resp["failed_claims"].([]any)
	require.Len(t, failed, 1)
	entry := failed[0].(map[string]any)
	assert.Equal(t, "b.jpg", entry["filename"])
	assert.Equal(t, "bob", entry["claimed_by"])

	// All or nothing: a.jpg was not claimed either.
	assert.Empty(t, e.claims.Holder("a.jpg"))
}

func TestLink_Validation(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, _ := e.request(t, http.MethodPost, "/api/link/a.jpg", "alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.request(t, http.MethodPost, "/api/link/a.jpg", "alice", `{"target": "missing.jpg"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.request(t, http.MethodPost, "/api/link/missing.jpg", "alice", `{"target": "a.jpg"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnlink(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, _ := e.request(t, http.MethodPost, "/api/link/a.jpg", "alice", `{"target": "b.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := e.request(t, http.MethodPost, "/api/unlink/a.jpg", "alice", `{"target": "b.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])

	a, _ := e.store.Get("a.jpg")
	assert.Empty(t, a.Review.LinkedImages)
}

func TestUnlink_RequiresClaim(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, _ := e.request(t, http.MethodPost, "/api/unlink/a.jpg", "alice", `{"target": "b.jpg"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNextUnreviewed(t *testing.T) {
	e := newTestEnv(t, twoImages())

	w, resp := e.request(t, http.MethodGet, "/api/next-unreviewed", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a.jpg", resp["filename"])
}

func TestNextUnreviewed_AllDone(t *testing.T) {
	e := newTestEnv(t, map[string]*models.Item{
		"a.jpg": testhelpers.ReviewedItem("a.jpg", 1, 0, false, models.StatusApproved),
	})

	w, resp := e.request(t, http.MethodGet, "/api/next-unreviewed", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, resp["filename"])
	assert.Equal(t, "All images reviewed!", resp["message"])
}

func TestNavigation(t *testing.T) {
	e := newTestEnv(t, map[string]*models.Item{
		"a.jpg": testhelpers.Item("a.jpg", 1, 0, false),
		"b.jpg": testhelpers.Item("b.jpg", 2, 0, false),
		"c.jpg": testhelpers.Item("c.jpg", 3, 0, false),
	})

	// Build a trail: a then b. Current page is b.
	e.request(t, http.MethodGet, "/api/image/a.jpg?add_to_history=true", "alice", "")
	e.request(t, http.MethodGet, "/api/image/b.jpg?add_to_history=true", "alice", "")

	w, resp := e.request(t, http.MethodGet, "/api/navigation/b.jpg", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.EqualValues(t, 0, resp["current_index"])
	assert.EqualValues(t, 2, resp["history_length"])
	assert.Equal(t, true, resp["can_go_back"])
	assert.Equal(t, false, resp["can_go_forward"])
	assert.Equal(t, "a.jpg", resp["back_target"])
	assert.Nil(t, resp["forward_target"])
	assert.Equal(t, "c.jpg", resp["next_unreviewed"])
	assert.Equal(t, "priority", resp["next_unreviewed_mode"])
	assert.Equal(t, false, resp["all_resolved"])
}

func TestAdjacent(t *testing.T) {
	e := newTestEnv(t, map[string]*models.Item{
		"a.jpg": testhelpers.Item("a.jpg", 1, 0, false),
		"b.jpg": testhelpers.Item("b.jpg", 2, 0, false),
		"c.jpg": testhelpers.Item("c.jpg", 3, 0, false),
	})
	e.claims.Acquire("c.jpg", "bob", false)

	w, _ := e.request(t, http.MethodGet, "/api/adjacent/b.jpg", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []gin.H
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "a.jpg", list[0]["filename"])
	assert.Equal(t, true, list[1]["is_current"])
	assert.Equal(t, "bob", list[2]["claimed_by"])

	w, _ = e.request(t, http.MethodGet, "/api/adjacent/missing.jpg", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestServeImage_RejectsTraversal(t *testing.T) {
	e := newTestEnv(t, nil)

	w, _ := e.request(t, http.MethodGet, "/images/..", "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings(t *testing.T) {
	e := newTestEnv(t, nil)

	w, resp := e.request(t, http.MethodGet, "/api/settings", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice-key", resp["api_key"])

	w, _ = e.request(t, http.MethodPost, "/api/settings", "alice", `{"api_key": "new-key"}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, resp = e.request(t, http.MethodGet, "/api/settings", "alice", "")
	assert.Equal(t, "new-key", resp["api_key"])

	// An explicit empty key clears it.
	w, _ = e.request(t, http.MethodPost, "/api/settings", "alice", `{"api_key": ""}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, resp = e.request(t, http.MethodGet, "/api/settings", "alice", "")
	assert.Equal(t, "", resp["api_key"])
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t, map[string]*models.Item{
		"a.jpg": testhelpers.ReviewedItem("a.jpg", 1, 0, false, models.StatusApproved),
		"b.jpg": testhelpers.Item("b.jpg", 2, 0, false),
	})

	w, resp := e.request(t, http.MethodGet, "/api/status", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	summary := resp["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total"])
	assert.EqualValues(t, 1, summary["approved"])
}
