package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/seed"
	"github.com/starford/linkorder/internal/testutil"
)

// testEnv sets up a temp seed dir, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*linkservice.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithSeedDir(t, authToken != "", authToken, nil)
	return svc, router
}

func testEnvWithSeedDir(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*linkservice.Service, http.Handler, string) {
	t.Helper()
	seedDir, files := testutil.TestSeedDir(t)
	st := testutil.TestStore(t)
	svc := linkservice.NewService(st, nil)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	importer := seed.NewImporter(svc, st, files, logger)
	router := NewRouter(svc, authEnabled, authToken, sseHandler, importer)
	return svc, router, seedDir
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(ActorHeader, "tester")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// playlist registers the types and returns the IDs of a playlist and songs.
func playlist(t *testing.T, svc *linkservice.Service, songs ...string) (string, map[string]string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.CreateLinkType(ctx, models.LinkType{ID: "has-song"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateEntityType(ctx, models.EntityType{ID: "playlist", OutgoingLinks: []models.OutgoingLinkRule{
		{LinkTypeID: "has-song", Array: true, Ordered: true},
	}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateEntityType(ctx, models.EntityType{ID: "song"}); err != nil {
		t.Fatal(err)
	}
	p, err := svc.CreateEntity(ctx, "playlist", "", map[string]any{"title": "Road trip"})
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]string{}
	for _, name := range songs {
		e, err := svc.CreateEntity(ctx, "song", "", map[string]any{"title": name})
		if err != nil {
			t.Fatal(err)
		}
		ids[name] = e.ID
	}
	return p.ID, ids
}

func decodeLink(t *testing.T, w *httptest.ResponseRecorder) LinkResponse {
	t.Helper()
	var resp LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	return resp
}

func targets(g *models.Group, names map[string]string) []string {
	byID := map[string]string{}
	for name, id := range names {
		byID[id] = name
	}
	out := make([]string, len(g.Links))
	for i, l := range g.Links {
		out[i] = byID[l.TargetEntityID]
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLinkLifecycle(t *testing.T) {
	svc, router := testEnv(t, "")
	p, songs := playlist(t, svc, "A", "B", "C")

	create := func(name string, index *int) LinkResponse {
		t.Helper()
		w := do(t, router, http.MethodPost, "/links", CreateLinkRequest{
			SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs[name], Index: index,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create %s = %d, body = %s", name, w.Code, w.Body.String())
		}
		return decodeLink(t, w)
	}

	a := create("A", nil)
	create("B", nil)
	zero := 0
	c := create("C", &zero)
	if got := targets(c.Group, songs); !equal(got, []string{"C", "A", "B"}) {
		t.Fatalf("after insert = %v", got)
	}
	if c.Link.CreatedByID != "tester" {
		t.Errorf("createdById = %q", c.Link.CreatedByID)
	}

	one := 1
	w := do(t, router, http.MethodPatch, "/links/"+c.Link.ID, UpdateLinkRequest{UpdatedIndex: &one})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	if got := targets(decodeLink(t, w).Group, songs); !equal(got, []string{"A", "C", "B"}) {
		t.Errorf("after move = %v", got)
	}

	w = do(t, router, http.MethodDelete, "/links/"+a.Link.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	var removed RemoveLinkResponse
	_ = json.Unmarshal(w.Body.Bytes(), &removed)
	if got := targets(removed.Group, songs); !equal(got, []string{"C", "B"}) {
		t.Errorf("after delete = %v", got)
	}

	w = do(t, router, http.MethodGet, "/groups/"+p+"/has-song", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("group = %d", w.Code)
	}
	var g models.Group
	_ = json.Unmarshal(w.Body.Bytes(), &g)
	if got := targets(&g, songs); !equal(got, []string{"C", "B"}) {
		t.Errorf("group = %v", got)
	}
	for i, l := range g.Links {
		if l.Index == nil || *l.Index != i {
			t.Errorf("link %d index = %v", i, l.Index)
		}
	}
}

func TestCreateLink_OutOfRange(t *testing.T) {
	svc, router := testEnv(t, "")
	p, songs := playlist(t, svc, "A")

	five := 5
	w := do(t, router, http.MethodPost, "/links", CreateLinkRequest{
		SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs["A"], Index: &five,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("out of range create = %d, want 422", w.Code)
	}
}

func TestCreateLink_NotFound(t *testing.T) {
	svc, router := testEnv(t, "")
	p, _ := playlist(t, svc)

	w := do(t, router, http.MethodPost, "/links", CreateLinkRequest{
		SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: "ghost",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing target = %d, want 404", w.Code)
	}
}

func TestCreateLink_InvalidBody(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/links", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/links", CreateLinkRequest{LinkTypeID: "has-song"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fields = %d, want 400", w.Code)
	}
}

func TestUpdateLink(t *testing.T) {
	svc, router := testEnv(t, "")
	p, songs := playlist(t, svc, "A", "B")
	ctx := context.Background()
	a, _, err := svc.CreateOrderedLink(ctx, linkservice.CreateLinkParams{SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs["A"]})
	if err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPatch, "/links/"+a.ID, map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", w.Code)
	}

	one := 1
	w = do(t, router, http.MethodPatch, "/links/"+a.ID, UpdateLinkRequest{UpdatedIndex: &one})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("move past end = %d, want 422", w.Code)
	}

	w = do(t, router, http.MethodPatch, "/links/"+a.ID, UpdateLinkRequest{Properties: map[string]any{"note": "x"}})
	if w.Code != http.StatusOK {
		t.Fatalf("properties = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decodeLink(t, w); resp.Link.Properties["note"] != "x" {
		t.Errorf("properties = %v", resp.Link.Properties)
	}

	w = do(t, router, http.MethodPatch, "/links/missing", UpdateLinkRequest{UpdatedIndex: &one})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing link = %d, want 404", w.Code)
	}
}

func TestUpdateLink_MoveAndPropertiesAreAtomic(t *testing.T) {
	svc, router := testEnv(t, "")
	p, songs := playlist(t, svc, "A", "B")
	ctx := context.Background()
	a, _, err := svc.CreateOrderedLink(ctx, linkservice.CreateLinkParams{SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs["A"]})
	if err != nil {
		t.Fatal(err)
	}

	// The move fails, so the properties in the same request must not stick.
	five := 5
	w := do(t, router, http.MethodPatch, "/links/"+a.ID, UpdateLinkRequest{UpdatedIndex: &five, Properties: map[string]any{"note": "x"}})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("move past end = %d, want 422", w.Code)
	}
	got, err := svc.GetLink(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Properties["note"]; ok {
		t.Errorf("properties committed despite failed move: %v", got.Properties)
	}

	if _, _, err := svc.CreateOrderedLink(ctx, linkservice.CreateLinkParams{SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs["B"]}); err != nil {
		t.Fatal(err)
	}
	one := 1
	w = do(t, router, http.MethodPatch, "/links/"+a.ID, UpdateLinkRequest{UpdatedIndex: &one, Properties: map[string]any{"note": "y"}})
	if w.Code != http.StatusOK {
		t.Fatalf("move and properties = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeLink(t, w)
	if *resp.Link.Index != 1 || resp.Link.Properties["note"] != "y" {
		t.Errorf("link = index %d, properties %v", *resp.Link.Index, resp.Link.Properties)
	}
}

func TestDeleteLink_Twice(t *testing.T) {
	svc, router := testEnv(t, "")
	p, songs := playlist(t, svc, "A")
	a, _, err := svc.CreateOrderedLink(context.Background(), linkservice.CreateLinkParams{SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs["A"]})
	if err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodDelete, "/links/"+a.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("first delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/links/"+a.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestTypesAndEntities(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/link-types", CreateLinkTypeRequest{ID: "has-song", Title: "Has song"}); w.Code != http.StatusCreated {
		t.Fatalf("create link type = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/link-types", CreateLinkTypeRequest{ID: "has-song"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate link type = %d, want 409", w.Code)
	}
	w := do(t, router, http.MethodPost, "/entity-types", CreateEntityTypeRequest{
		ID: "playlist", OutgoingLinks: []models.OutgoingLinkRule{{LinkTypeID: "has-song", Array: true, Ordered: true}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create entity type = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/entity-types", CreateEntityTypeRequest{
		ID: "bad", OutgoingLinks: []models.OutgoingLinkRule{{LinkTypeID: "has-song", Ordered: true}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("ordered non-array = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/entity-types/playlist", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get entity type = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/entities", CreateEntityRequest{EntityTypeID: "playlist", Properties: map[string]any{"title": "Road trip"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create entity = %d, body = %s", w.Code, w.Body.String())
	}
	var e models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &e)

	w = do(t, router, http.MethodPatch, "/entities/"+e.ID, UpdateEntityRequest{Properties: map[string]any{"title": "Night drive"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update entity = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/entities?type=playlist", nil)
	var list EntityListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Entities) != 1 || list.Entities[0].Title() != "Night drive" {
		t.Errorf("list = %+v", list)
	}

	if w := do(t, router, http.MethodGet, "/entities/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing entity = %d, want 404", w.Code)
	}
}

func TestEntityLinks(t *testing.T) {
	svc, router := testEnv(t, "")
	p, songs := playlist(t, svc, "A", "B")
	ctx := context.Background()
	for _, name := range []string{"A", "B"} {
		if _, _, err := svc.CreateOrderedLink(ctx, linkservice.CreateLinkParams{SourceEntityID: p, LinkTypeID: "has-song", TargetEntityID: songs[name]}); err != nil {
			t.Fatal(err)
		}
	}

	w := do(t, router, http.MethodGet, "/entities/"+p+"/links?linkType=has-song", nil)
	var out LinkListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if len(out.Links) != 2 || out.Links[0].TargetEntityID != songs["A"] {
		t.Errorf("outgoing = %+v", out.Links)
	}

	w = do(t, router, http.MethodGet, "/entities/"+songs["B"]+"/incoming", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if len(out.Links) != 1 || out.Links[0].SourceEntityID != p {
		t.Errorf("incoming = %+v", out.Links)
	}

	w = do(t, router, http.MethodGet, "/groups/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("check = %d", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	svc, router := testEnv(t, "")
	playlist(t, svc, "Yellow Submarine")

	w := do(t, router, http.MethodGet, "/search?q=Submarine", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/link-types", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/link-types", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/link-types", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithSeedDir(t, true, "tok", sseStub())
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithSeedDir(t, true, "tok", sseStub())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// sseStub writes headers and blocks until the request context is done.
func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

// Seed file tests.

const seedDoc = `
linkTypes:
  - id: has-song
entityTypes:
  - id: playlist
    outgoingLinks:
      - {linkType: has-song, array: true, ordered: true}
  - id: song
entities:
  - {key: mix, type: playlist}
  - {key: song-a, type: song}
  - {key: song-b, type: song}
links:
  - {source: mix, linkType: has-song, target: song-a}
  - {source: mix, linkType: has-song, target: song-b, index: 0}
`

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/seed-files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadSeedFile(t *testing.T) {
	svc, router, seedDir := testEnvWithSeedDir(t, false, "", nil)

	w := uploadFile(t, router, "music.yaml", []byte(seedDoc))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SeedUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename != "music.yaml" || resp.Result.LinksCreated != 2 {
		t.Errorf("response = %+v", resp)
	}

	if _, err := os.Stat(filepath.Join(seedDir, "music.yaml")); err != nil {
		t.Fatalf("file not on disk: %v", err)
	}

	mix, err := svc.EntityByKey(context.Background(), "mix")
	if err != nil {
		t.Fatal(err)
	}
	g, err := svc.GetGroup(context.Background(), models.GroupKey{SourceEntityID: mix.ID, LinkTypeID: "has-song"})
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Links) != 2 {
		t.Errorf("group = %+v", g.Links)
	}

	w = do(t, router, http.MethodGet, "/seed-files", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/seed-files/music.yaml", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("has-song")) {
		t.Errorf("serve = %d", w.Code)
	}
}

func TestUploadSeedFile_Rejected(t *testing.T) {
	_, router, seedDir := testEnvWithSeedDir(t, false, "", nil)

	if w := uploadFile(t, router, "notes.txt", []byte(seedDoc)); w.Code != http.StatusBadRequest {
		t.Errorf("wrong extension = %d, want 400", w.Code)
	}
	if w := uploadFile(t, router, "broken.yaml", []byte("links: [\n")); w.Code != http.StatusBadRequest {
		t.Errorf("broken yaml = %d, want 400", w.Code)
	}
	if _, err := os.Stat(filepath.Join(seedDir, "broken.yaml")); err == nil {
		t.Error("rejected document was written")
	}
}

func TestServeSeedFile_NotFound(t *testing.T) {
	_, router, _ := testEnvWithSeedDir(t, false, "", nil)
	if w := do(t, router, http.MethodGet, "/seed-files/nope.yaml", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing seed file = %d, want 404", w.Code)
	}
}

func TestUploadSeedFile_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithSeedDir(t, true, "secret", nil)
	if w := uploadFile(t, router, "music.yaml", []byte(seedDoc)); w.Code != http.StatusUnauthorized {
		t.Errorf("upload no auth = %d, want 401", w.Code)
	}
}

func TestUploadSeedFile_MissingFileField(t *testing.T) {
	_, router, _ := testEnvWithSeedDir(t, false, "", nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/seed-files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}
