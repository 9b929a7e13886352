package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-workout-planner/internal/auth"
	"ai-workout-planner/internal/database"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/media"
	"ai-workout-planner/internal/orchestrator"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/session"
	"ai-workout-planner/internal/workout"
)

const testSecret = "test-secret"

type fakeGifs struct{ queries []string }

func (f *fakeGifs) Search(_ context.Context, q string) media.GifResult {
	f.queries = append(f.queries, q)
	return media.GifResult{OK: true, URL: "https://media.giphy.com/" + q + ".gif", Gif: "https://media.giphy.com/" + q + ".gif", GifW: 480, GifH: 270}
}

// failingPlans fails every generation; the rest comes from the embedded
// service.
type failingPlans struct {
	PlanService
	err error
}

func (f failingPlans) GenerateForUser(context.Context, string, intake.Fields) (workout.Plan, error) {
	return workout.Plan{}, f.err
}

func (f failingPlans) GenerateForGuest(context.Context, string, intake.Fields) (workout.Plan, error) {
	return workout.Plan{}, f.err
}

type testEnv struct {
	router   *gin.Engine
	verifier *auth.Verifier
	gifs     *fakeGifs
}

func newTestEnv(t *testing.T, mutate ...func(*RouterConfig)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "http.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orch := orchestrator.New(records.NewRepository(db.SQL), session.NewMemoryStore())
	gifs := &fakeGifs{}
	verifier := auth.NewVerifier(testSecret)
	cfg := RouterConfig{
		Handlers:        NewHandlers(orch, gifs, logger.Nop(), t.TempDir()),
		Verifier:        verifier,
		Log:             logger.Nop(),
		CORSOrigins:     []string{"http://localhost:5173"},
		RateLimitPerMin: 1000,
		GuestTTL:        time.Hour,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return &testEnv{router: NewRouter(cfg), verifier: verifier, gifs: gifs}
}

type request struct {
	method  string
	target  string
	body    string
	headers map[string]string
	cookies []*http.Cookie
}

func (e *testEnv) do(r request) *httptest.ResponseRecorder {
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.target, body)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json", "Content-Type": "application/json"}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func guestCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == GuestCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", GuestCookie)
	return nil
}

func TestGuestPlanJSONThenLoginRequired(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(request{method: http.MethodPost, target: "/plan", body: `{"goal":"core","days":3,"equipment":"dumbbells"}`, headers: jsonHeaders()})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	body := decode(t, first)
	assert.Equal(t, true, body["ok"])
	plan := body["plan"].(map[string]any)
	assert.EqualValues(t, 3, plan["daysPerWeek"])
	assert.Len(t, plan["plan"], 3)
	assert.Equal(t, "rules", plan["meta"].(map[string]any)["source"])

	cookie := guestCookie(t, first)
	assert.True(t, cookie.HttpOnly)

	second := env.do(request{method: http.MethodPost, target: "/ai/plan", body: `{}`, headers: jsonHeaders(), cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": "login_required"}, decode(t, second))

	out := env.do(request{method: http.MethodGet, target: "/wizard/output", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, out.Code)
	outBody := decode(t, out)
	assert.EqualValues(t, 0, outBody["guestRemaining"])
	assert.NotNil(t, outBody["plan"])
}

func TestGuestFormPostRedirects(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"goal": {"endurance"}, "equipment[]": {"bands", "kettlebell"}}.Encode()
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

	first := env.do(request{method: http.MethodPost, target: "/plan", body: form, headers: headers})
	assert.Equal(t, http.StatusSeeOther, first.Code)
	assert.Equal(t, "/wizard/output", first.Header().Get("Location"))

	cookie := guestCookie(t, first)
	second := env.do(request{method: http.MethodPost, target: "/plan", body: form, headers: headers, cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusSeeOther, second.Code)
	assert.Equal(t, "/wizard/output?msg=login_required", second.Header().Get("Location"))
}

func TestGetPlanAppliesQueryOverrides(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodGet, target: "/plan?days=2&duration=20", headers: map[string]string{"X-Requested-With": "XMLHttpRequest"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode(t, rec)["plan"].(map[string]any)
	assert.EqualValues(t, 2, plan["daysPerWeek"])
}

func TestPlanFailureResponses(t *testing.T) {
	env := newTestEnv(t, func(cfg *RouterConfig) {
		h := *cfg.Handlers
		h.plans = failingPlans{PlanService: h.plans, err: errors.New("boom")}
		cfg.Handlers = &h
	})

	rec := env.do(request{method: http.MethodPost, target: "/plan", body: `{}`, headers: jsonHeaders()})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": planErrorMessage}, decode(t, rec))

	rec = env.do(request{method: http.MethodGet, target: "/plan"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/wizard/fitnessgoal?msg=plan_error", rec.Header().Get("Location"))
}

func TestMalformedJSONBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodPost, target: "/plan", body: `{"goal":`, headers: jsonHeaders()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])
}

func TestAuthenticatedUserFlow(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.verifier.Issue("user-1", "Ada", time.Hour)
	require.NoError(t, err)
	headers := jsonHeaders()
	headers["Authorization"] = "Bearer " + token

	step := env.do(request{method: http.MethodPost, target: "/wizard/fitnessgoal", body: `{"goal":"Muscle Gain"}`, headers: headers})
	require.Equal(t, http.StatusOK, step.Code, step.Body.String())
	spec := decode(t, step)["spec"].(map[string]any)
	assert.Equal(t, workout.GoalMuscleGain, spec["goal"])

	for i := 0; i < 2; i++ {
		rec := env.do(request{method: http.MethodPost, target: "/plan", body: `{"days":4}`, headers: headers})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	for _, c := range env.do(request{method: http.MethodPost, target: "/plan", headers: headers}).Result().Cookies() {
		assert.NotEqual(t, GuestCookie, c.Name)
	}

	latest := env.do(request{method: http.MethodGet, target: "/records/latest", headers: headers})
	require.Equal(t, http.StatusOK, latest.Code)
	record := decode(t, latest)["record"].(map[string]any)
	assert.Equal(t, string(workout.StatePlanReady), record["state"])
	assert.NotNil(t, record["plan"])

	status := env.do(request{method: http.MethodGet, target: "/wizard/status", headers: headers})
	assert.Equal(t, string(workout.StatePlanReady), decode(t, status)["state"])

	out := env.do(request{method: http.MethodGet, target: "/wizard/output", headers: headers})
	assert.EqualValues(t, 0, decode(t, out)["guestRemaining"])
}

func TestTokenCookieIdentifiesUser(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.verifier.Issue("user-2", "", time.Hour)
	require.NoError(t, err)

	rec := env.do(request{method: http.MethodGet, target: "/records/latest", cookies: []*http.Cookie{{Name: TokenCookie, Value: token}}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_plan", decode(t, rec)["error"])
}

func TestRecordsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, headers := range []map[string]string{nil, {"Authorization": "Bearer not-a-token"}} {
		rec := env.do(request{method: http.MethodGet, target: "/records/latest", headers: headers})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not_authenticated", decode(t, rec)["error"])
	}
}

func TestWizardValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		step   string
		body   string
		status int
		code   string
	}{
		{"fitnessgoal", `{"goal":"  "}`, http.StatusBadRequest, "missing_goal"},
		{"fitness-level", `{"level":"expert"}`, http.StatusBadRequest, "invalid_level"},
		{"nope", `{}`, http.StatusNotFound, "unknown_step"},
	}
	for _, tc := range cases {
		t.Run(tc.step, func(t *testing.T) {
			rec := env.do(request{method: http.MethodPost, target: "/wizard/" + tc.step, body: tc.body, headers: jsonHeaders()})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}
}

func TestGuestWizardAccumulates(t *testing.T) {
	env := newTestEnv(t)

	status := env.do(request{method: http.MethodGet, target: "/wizard/status"})
	assert.Equal(t, string(workout.StateIntake), decode(t, status)["state"])
	cookie := guestCookie(t, status)

	out := env.do(request{method: http.MethodGet, target: "/wizard/output", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusNotFound, out.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": "no_plan"}, decode(t, out))

	env.do(request{method: http.MethodPost, target: "/wizard/name-age", body: `{"name":"Sam","age":"34"}`, headers: jsonHeaders(), cookies: []*http.Cookie{cookie}})
	rec := env.do(request{method: http.MethodPost, target: "/wizard/duration", body: `{"durationMin":25,"daysPerWeek":5}`, headers: jsonHeaders(), cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	spec := decode(t, rec)["spec"].(map[string]any)
	assert.Equal(t, "Sam", spec["userName"])
	assert.EqualValues(t, 34, spec["age"])
	assert.EqualValues(t, 5, spec["daysPerWeek"])
	assert.EqualValues(t, 25, spec["durationMin"])
}

func TestGif(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodGet, target: "/gif?q=squat"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 480, body["gif_w"])
	assert.Equal(t, []string{"squat"}, env.gifs.queries)

	noGifs := newTestEnv(t, func(cfg *RouterConfig) {
		h := *cfg.Handlers
		h.gifs = nil
		cfg.Handlers = &h
	})
	rec = noGifs.do(request{method: http.MethodGet, target: "/gif?q=squat"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *RouterConfig) { cfg.RateLimitPerMin = 2 })
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(request{method: http.MethodGet, target: "/gif?q=x"}).Code)
	}
	rec := env.do(request{method: http.MethodGet, target: "/gif?q=x"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["error"])

	// Health checks are not rate limited.
	assert.Equal(t, http.StatusOK, env.do(request{method: http.MethodGet, target: "/healthz"}).Code)
}

func TestRateLimiterIsPerKey(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodOptions, target: "/plan", headers: map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": http.MethodPost,
	}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodGet, target: "/healthz"})
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode(t, rec)["health"].(map[string]any)
	assert.Contains(t, health, "goroutines")
}

func TestWebhookMountedWhenConfigured(t *testing.T) {
	var hits int
	env := newTestEnv(t, func(cfg *RouterConfig) {
		cfg.TelegramWebhook = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusOK)
		})
	})
	rec := env.do(request{method: http.MethodPost, target: "/webhook", body: `{}`})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits)
}

func TestFieldsFromValues(t *testing.T) {
	got := fieldsFromValues(url.Values{
		"goal":        {"core"},
		"equipment[]": {"bands", "mat"},
		"empty":       {},
	})
	assert.Equal(t, intake.Fields{"goal": "core", "equipment": []string{"bands", "mat"}}, got)
}
