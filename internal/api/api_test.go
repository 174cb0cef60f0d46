package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/auth"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/cache"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/convert"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/db"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/render"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/services"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	frontSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="200"><image data-variable="profile_photo" width="80" height="80"/><text>{{ name }}</text></svg>`
	backSVG  = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="200"><image data-variable="qrcode_id" width="80" height="80"/></svg>`
)

var jwtSecret = []byte("api-secret")

type memoryRepo struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*db.CardTemplate
	users     map[string]*db.User
	nextID    int64
	failList  bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		templates: map[uuid.UUID]*db.CardTemplate{},
		users:     map[string]*db.User{},
	}
}

func (r *memoryRepo) GetOrCreateUser(_ context.Context, subject, email, name string) (*db.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[subject]; ok {
		return u, nil
	}
	u := &db.User{ID: uuid.New(), Subject: subject, Email: email, Name: name}
	r.users[subject] = u
	return u, nil
}

func (r *memoryRepo) CreateTemplate(_ context.Context, t *db.CardTemplate) (*db.CardTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	created := *t
	created.ID = r.nextID
	created.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	created.UpdatedAt = created.CreatedAt
	r.templates[t.UUID] = &created
	out := created
	return &out, nil
}

func (r *memoryRepo) GetTemplateByUUID(_ context.Context, id uuid.UUID) (*db.CardTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r *memoryRepo) ListTemplates(_ context.Context, limit, offset int) ([]*db.CardTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList {
		return nil, fmt.Errorf("connection reset")
	}
	all := make([]*db.CardTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out := *t
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []*db.CardTemplate{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *memoryRepo) CountTemplates(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.templates), nil
}

func (r *memoryRepo) UpdateTemplate(_ context.Context, id uuid.UUID, title, frontKey, backKey *string) (*db.CardTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if title != nil {
		t.Title = *title
	}
	if frontKey != nil {
		t.FrontKey = *frontKey
	}
	if backKey != nil {
		t.BackKey = *backKey
	}
	t.UpdatedAt = time.Now()
	out := *t
	return &out, nil
}

func (r *memoryRepo) DeleteTemplate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return db.ErrNotFound
	}
	delete(r.templates, id)
	return nil
}

type fakeRenderer struct {
	mu     sync.Mutex
	calls  int
	card   render.Card
	fields map[string]string
	opts   render.Options
	err    error
}

func (f *fakeRenderer) Render(_ context.Context, card render.Card, fields map[string]string, opts render.Options) (*render.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.card, f.fields, f.opts = card, fields, opts
	if f.err != nil {
		return nil, f.err
	}
	return &render.Result{
		PDF: render.EncodeDataURI(render.MimePDF, []byte("%PDF-1.4")),
		PNG: []string{render.EncodeDataURI(render.MimePNG, []byte("png"))},
	}, nil
}

type testEnv struct {
	app      *fiber.App
	repo     *memoryRepo
	store    *storage.FSStore
	cache    *cache.RedisCache
	mr       *miniredis.Miniredis
	renderer *fakeRenderer
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		repo:     newMemoryRepo(),
		store:    store,
		cache:    cache.NewWithClient(client, time.Hour),
		mr:       mr,
		renderer: &fakeRenderer{},
	}

	deps := Deps{
		Repo:     env.repo,
		Store:    env.store,
		Cache:    env.cache,
		Renderer: env.renderer,
		Config: &config.Config{
			BaseURL:                  "http://cards.test",
			RateLimitRenderPerMinute: 100,
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.app = fiber.New()
	RegisterRoutes(env.app, NewHandlers(deps), deps)
	return env
}

type upload struct {
	field, filename, content string
}

func multipartBody(t *testing.T, title string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if title != "" {
		require.NoError(t, w.WriteField("title", title))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (e *testEnv) createCard(t *testing.T, title string) CardResponse {
	t.Helper()
	body, contentType := multipartBody(t, title,
		upload{"front_svg", "front.svg", frontSVG},
		upload{"back_svg", "back.svg", backSVG},
	)
	req := httptest.NewRequest("POST", "/v1/cards", body)
	req.Header.Set("Content-Type", contentType)

	resp, raw := e.do(t, req)
	require.Equal(t, 201, resp.StatusCode, string(raw))

	var card CardResponse
	require.NoError(t, json.Unmarshal(raw, &card))
	return card
}

func jsonRequest(method, target string, v any) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCard(t *testing.T) {
	env := newTestEnv(t)

	card := env.createCard(t, "Beneficiary ID")

	assert.Equal(t, "Beneficiary ID", card.Title)
	assert.Equal(t, "http://cards.test/v1/cards/"+card.UUID+"/front.svg", card.FrontSVG)
	assert.Equal(t, "http://cards.test/v1/cards/"+card.UUID+"/back.svg", card.BackSVG)

	id := uuid.MustParse(card.UUID)
	stored, err := env.store.Get(context.Background(), storage.TemplateKey(id, "front"))
	require.NoError(t, err)
	assert.Equal(t, frontSVG, string(stored))

	tmpl, err := env.repo.GetTemplateByUUID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, tmpl.CreatedBy)
}

func TestCreateCard_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		title   string
		files   []upload
		wantKey string
		wantMsg string
	}{
		{
			name:    "missing title",
			files:   []upload{{"front_svg", "f.svg", frontSVG}, {"back_svg", "b.svg", backSVG}},
			wantKey: "title",
			wantMsg: "title: This field is required.",
		},
		{
			name:    "title too long",
			title:   strings.Repeat("x", 51),
			files:   []upload{{"front_svg", "f.svg", frontSVG}, {"back_svg", "b.svg", backSVG}},
			wantKey: "title",
			wantMsg: "title: Ensure this field has no more than 50 characters.",
		},
		{
			name:    "missing back",
			title:   "Card",
			files:   []upload{{"front_svg", "f.svg", frontSVG}},
			wantKey: "back_svg",
			wantMsg: "back_svg: This field is required.",
		},
		{
			name:    "wrong extension",
			title:   "Card",
			files:   []upload{{"front_svg", "f.png", frontSVG}, {"back_svg", "b.svg", backSVG}},
			wantKey: "front_svg",
			wantMsg: `front_svg: File extension "png" is not allowed. Allowed extensions are: svg.`,
		},
		{
			name:    "malformed document",
			title:   "Card",
			files:   []upload{{"front_svg", "f.svg", frontSVG}, {"back_svg", "b.svg", "<svg><g></svg>"}},
			wantKey: "back_svg",
			wantMsg: "back_svg: Not a well-formed SVG document.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.title, tt.files...)
			req := httptest.NewRequest("POST", "/v1/cards", body)
			req.Header.Set("Content-Type", contentType)

			resp, raw := env.do(t, req)
			assert.Equal(t, 400, resp.StatusCode)

			var out map[string]string
			require.NoError(t, json.Unmarshal(raw, &out))
			assert.Equal(t, tt.wantMsg, out[tt.wantKey])
		})
	}

	count, err := env.repo.CountTemplates(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListCards(t *testing.T) {
	env := newTestEnv(t)
	first := env.createCard(t, "First")
	second := env.createCard(t, "Second")

	resp, raw := env.do(t, httptest.NewRequest("GET", "/v1/cards?limit=1", nil))
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		Cards  []CardResponse `json:"cards"`
		Total  int            `json:"total"`
		Limit  int            `json:"limit"`
		Offset int            `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 1, out.Limit)
	require.Len(t, out.Cards, 1)
	assert.Equal(t, second.UUID, out.Cards[0].UUID)

	_, raw = env.do(t, httptest.NewRequest("GET", "/v1/cards?limit=500&offset=1", nil))
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 100, out.Limit)
	require.Len(t, out.Cards, 1)
	assert.Equal(t, first.UUID, out.Cards[0].UUID)
}

func TestListCards_RepositoryError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.failList = true

	resp, raw := env.do(t, httptest.NewRequest("GET", "/v1/cards", nil))
	assert.Equal(t, 500, resp.StatusCode)
	assert.JSONEq(t, `{"error":"failed to list cards"}`, string(raw))
}

func TestGetCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")

	resp, raw := env.do(t, httptest.NewRequest("GET", "/v1/cards/"+card.UUID, nil))
	require.Equal(t, 200, resp.StatusCode)

	var got CardResponse
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, card.UUID, got.UUID)

	for _, target := range []string{"/v1/cards/" + uuid.NewString(), "/v1/cards/not-a-uuid"} {
		resp, raw := env.do(t, httptest.NewRequest("GET", target, nil))
		assert.Equal(t, 404, resp.StatusCode, target)
		assert.JSONEq(t, `{"error":"card not found"}`, string(raw))
	}
}

func TestDownloadSVG(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")

	resp, raw := env.do(t, httptest.NewRequest("GET", "/v1/cards/"+card.UUID+"/back.svg", nil))
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, render.MimeSVG, resp.Header.Get("Content-Type"))
	assert.Equal(t, backSVG, string(raw))

	require.NoError(t, env.store.Delete(context.Background(), storage.TemplateKey(uuid.MustParse(card.UUID), "front")))
	resp, _ = env.do(t, httptest.NewRequest("GET", "/v1/cards/"+card.UUID+"/front.svg", nil))
	assert.Equal(t, 404, resp.StatusCode)
}

func TestUpdateCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")
	id := uuid.MustParse(card.UUID)

	// prime the field cache
	resp, _ := env.do(t, httptest.NewRequest("GET", "/v1/cards/"+card.UUID+"/fields", nil))
	require.Equal(t, 200, resp.StatusCode)
	require.True(t, env.mr.Exists("fields:"+card.UUID))

	newFront := `<svg xmlns="http://www.w3.org/2000/svg"><text>{{ surname }}</text></svg>`
	body, contentType := multipartBody(t, "Renamed", upload{"front_svg", "new.svg", newFront})
	req := httptest.NewRequest("PATCH", "/v1/cards/"+card.UUID, body)
	req.Header.Set("Content-Type", contentType)

	resp, raw := env.do(t, req)
	require.Equal(t, 200, resp.StatusCode, string(raw))

	var got CardResponse
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "Renamed", got.Title)

	stored, err := env.store.Get(context.Background(), storage.TemplateKey(id, "front"))
	require.NoError(t, err)
	assert.Equal(t, newFront, string(stored))
	assert.False(t, env.mr.Exists("fields:"+card.UUID))
}

func TestUpdateCard_TitleOnly(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")

	req := httptest.NewRequest("PUT", "/v1/cards/"+card.UUID, strings.NewReader("title=Updated"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, raw := env.do(t, req)
	require.Equal(t, 200, resp.StatusCode, string(raw))
	assert.Contains(t, string(raw), `"title":"Updated"`)
}

func TestUpdateCard_InvalidUploadStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")

	body, contentType := multipartBody(t, "",
		upload{"front_svg", "front.svg", `<svg xmlns="http://www.w3.org/2000/svg"/>`},
		upload{"back_svg", "back.txt", backSVG},
	)
	req := httptest.NewRequest("PATCH", "/v1/cards/"+card.UUID, body)
	req.Header.Set("Content-Type", contentType)

	resp, _ := env.do(t, req)
	assert.Equal(t, 400, resp.StatusCode)

	stored, err := env.store.Get(context.Background(), storage.TemplateKey(uuid.MustParse(card.UUID), "front"))
	require.NoError(t, err)
	assert.Equal(t, frontSVG, string(stored))
}

func TestDeleteCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")
	id := uuid.MustParse(card.UUID)

	resp, _ := env.do(t, httptest.NewRequest("DELETE", "/v1/cards/"+card.UUID, nil))
	assert.Equal(t, 204, resp.StatusCode)

	_, err := env.store.Get(context.Background(), storage.TemplateKey(id, "front"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	resp, _ = env.do(t, httptest.NewRequest("DELETE", "/v1/cards/"+card.UUID, nil))
	assert.Equal(t, 404, resp.StatusCode)
}

func TestGetFields(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")

	want := `{"fields":[{"tag":"image","name":"profile_photo"},{"tag":"image","name":"qrcode_id"},{"tag":"text","name":"name"}]}`

	resp, raw := env.do(t, httptest.NewRequest("GET", "/v1/cards/"+card.UUID+"/fields", nil))
	require.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, want, string(raw))
	assert.True(t, env.mr.Exists("fields:"+card.UUID))

	// served from cache once the documents are gone
	id := uuid.MustParse(card.UUID)
	require.NoError(t, env.store.Delete(context.Background(), storage.TemplateKey(id, "front")))

	resp, raw = env.do(t, httptest.NewRequest("GET", "/v1/cards/"+card.UUID+"/fields", nil))
	require.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, want, string(raw))
}

func TestRenderCard(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")

	profile := render.EncodeDataURI(render.MimePNG, []byte("photo"))
	req := jsonRequest("POST", "/v1/cards/"+card.UUID+"/render", map[string]any{
		"fields":     map[string]string{"name": "Juan", "profile_photo": profile, "qrcode_id": "ID-1"},
		"front_only": true,
	})

	resp, raw := env.do(t, req)
	require.Equal(t, 200, resp.StatusCode, string(raw))

	var out struct {
		Files render.Result `json:"files"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, strings.HasPrefix(out.Files.PDF, "data:application/pdf;base64,"))
	assert.Len(t, out.Files.PNG, 1)

	assert.Equal(t, card.UUID, env.renderer.card.ID)
	assert.Equal(t, frontSVG, string(env.renderer.card.FrontSVG))
	assert.Equal(t, backSVG, string(env.renderer.card.BackSVG))
	assert.Equal(t, "Juan", env.renderer.fields["name"])
	assert.Equal(t, render.Options{CreateQRCode: true, FrontOnly: true}, env.renderer.opts)
}

func TestRenderCard_RequestValidation(t *testing.T) {
	env := newTestEnv(t)
	card := env.createCard(t, "Card")
	target := "/v1/cards/" + card.UUID + "/render"

	resp, raw := env.do(t, jsonRequest("POST", target, map[string]any{}))
	assert.Equal(t, 400, resp.StatusCode)
	assert.JSONEq(t, `{"fields":"This field is required."}`, string(raw))

	resp, raw = env.do(t, jsonRequest("POST", target, map[string]any{
		"create_qr_code": false,
		"fields":         map[string]string{"profile_photo": "photo.png", "qrcode_id": "ID-1"},
	}))
	assert.Equal(t, 400, resp.StatusCode)
	assert.JSONEq(t, "{\"fields\":\"Fields `profile_photo, qrcode_id` value should be in data uri format.\"}", string(raw))

	req := httptest.NewRequest("POST", target, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = env.do(t, req)
	assert.Equal(t, 400, resp.StatusCode)

	assert.Zero(t, env.renderer.calls)
}

func TestRenderCard_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "qr capacity",
			err:        fmt.Errorf("qrcode_id: %w", services.ErrQRCodeCapacity),
			wantStatus: 400,
			wantBody:   `{"error":"QR code value exceed limit."}`,
		},
		{
			name:       "template syntax",
			err:        fmt.Errorf("%w: unexpected end of block", render.ErrTemplateSyntax),
			wantStatus: 422,
			wantBody:   `{"error":"template syntax error: unexpected end of block"}`,
		},
		{
			name:       "conversion",
			err:        convert.NewConverterError("rsvg-convert", "png", fmt.Errorf("exit status 1")),
			wantStatus: 500,
			wantBody:   `{"error":"failed to convert card"}`,
		},
		{
			name:       "no input",
			err:        convert.ErrNoInput,
			wantStatus: 500,
			wantBody:   `{"error":"failed to convert card"}`,
		},
		{
			name:       "other",
			err:        fmt.Errorf("disk full"),
			wantStatus: 500,
			wantBody:   `{"error":"failed to render card"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			card := env.createCard(t, "Card")
			env.renderer.err = tt.err

			resp, raw := env.do(t, jsonRequest("POST", "/v1/cards/"+card.UUID+"/render", map[string]any{
				"fields": map[string]string{"name": "Juan"},
			}))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.JSONEq(t, tt.wantBody, string(raw))
		})
	}
}

func TestRenderCard_RateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Config.RateLimitRenderPerMinute = 2 })
	card := env.createCard(t, "Card")
	target := "/v1/cards/" + card.UUID + "/render"
	body := map[string]any{"fields": map[string]string{"name": "Juan"}}

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, jsonRequest("POST", target, body))
		require.Equal(t, 200, resp.StatusCode)
	}

	resp, raw := env.do(t, jsonRequest("POST", target, body))
	assert.Equal(t, 429, resp.StatusCode)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, string(raw))
	assert.Equal(t, 2, env.renderer.calls)
}

func TestRenderCard_RateLimitFailsOpen(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Config.RateLimitRenderPerMinute = 1 })
	card := env.createCard(t, "Card")
	env.mr.Close()

	resp, raw := env.do(t, jsonRequest("POST", "/v1/cards/"+card.UUID+"/render", map[string]any{
		"fields": map[string]string{"name": "Juan"},
	}))
	assert.Equal(t, 200, resp.StatusCode, string(raw))
}

func TestEnqueueMerge(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, httptest.NewRequest("POST", "/v1/batches/42/merge", nil))
	require.Equal(t, 202, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, float64(42), out["batch_id"])
	assert.Equal(t, "queued", out["status"])
	assert.NotEmpty(t, out["job_id"])

	jobs, err := env.cache.ReadMergeJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(42), jobs[0].BatchID)

	for _, id := range []string{"abc", "0", "-3"} {
		resp, _ := env.do(t, httptest.NewRequest("POST", "/v1/batches/"+id+"/merge", nil))
		assert.Equal(t, 400, resp.StatusCode, id)
	}
}

func TestAuthenticatedRoutes(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Validator = auth.NewHS256Validator(jwtSecret) })

	resp, _ := env.do(t, httptest.NewRequest("GET", "/v1/cards", nil))
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = env.do(t, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 200, resp.StatusCode)

	token, err := auth.GenerateToken("svc-registry", jwtSecret, time.Hour)
	require.NoError(t, err)

	body, contentType := multipartBody(t, "Card",
		upload{"front_svg", "front.svg", frontSVG},
		upload{"back_svg", "back.svg", backSVG},
	)
	req := httptest.NewRequest("POST", "/v1/cards", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, raw := env.do(t, req)
	require.Equal(t, 201, resp.StatusCode, string(raw))

	var card CardResponse
	require.NoError(t, json.Unmarshal(raw, &card))

	tmpl, err := env.repo.GetTemplateByUUID(context.Background(), uuid.MustParse(card.UUID))
	require.NoError(t, err)
	require.NotNil(t, tmpl.CreatedBy)
	assert.Equal(t, env.repo.users["svc-registry"].ID, *tmpl.CreatedBy)
}
