package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeDrive is an in-memory stand-in for the remote file store and the
// identity endpoints, served over httptest.
type FakeDrive struct {
	Server *httptest.Server
	Token  string

	mu       sync.Mutex
	files    map[string]*fakeFile
	nextID   int
	calls    map[string]int
	failures map[string][]int
	gate     chan struct{}
	gateHit  chan struct{}
	profile  map[string]string
	revoked  []string
}

type fakeFile struct {
	name    string
	content []byte
}

// Operation names used for call counting and failure injection.
const (
	OpList     = "list"
	OpCreate   = "create"
	OpUpload   = "upload"
	OpDownload = "download"
	OpProfile  = "profile"
	OpRevoke   = "revoke"
)

// NewFakeDrive starts a fake server accepting bearer token "test-token".
func NewFakeDrive(t *testing.T) *FakeDrive {
	t.Helper()
	d := &FakeDrive{
		Token:    "test-token",
		files:    make(map[string]*fakeFile),
		calls:    make(map[string]int),
		failures: make(map[string][]int),
		profile:  map[string]string{"name": "Test User", "email": "test.user@example.com"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", d.handleList)
	mux.HandleFunc("GET /drive/v3/files/{id}", d.handleDownload)
	mux.HandleFunc("POST /upload/drive/v3/files", d.handleCreate)
	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", d.handleUpload)
	mux.HandleFunc("GET /oauth2/v2/userinfo", d.handleProfile)
	mux.HandleFunc("POST /revoke", d.handleRevoke)
	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Server.Close)
	return d
}

// APIBase, UploadBase, UserInfoURL and RevokeURL are the fake's endpoints.
func (d *FakeDrive) APIBase() string     { return d.Server.URL + "/drive/v3" }
func (d *FakeDrive) UploadBase() string  { return d.Server.URL + "/upload/drive/v3" }
func (d *FakeDrive) UserInfoURL() string { return d.Server.URL + "/oauth2/v2/userinfo" }
func (d *FakeDrive) RevokeURL() string   { return d.Server.URL + "/revoke" }

// PutFile stores a file directly and returns its id.
func (d *FakeDrive) PutFile(name string, content []byte) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putLocked(name, content)
}

func (d *FakeDrive) putLocked(name string, content []byte) string {
	d.nextID++
	id := fmt.Sprintf("file-%d", d.nextID)
	d.files[id] = &fakeFile{name: name, content: append([]byte(nil), content...)}
	return id
}

// Content returns the stored bytes of id, or nil.
func (d *FakeDrive) Content(id string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), f.content...)
}

// FileCount returns the number of stored files.
func (d *FakeDrive) FileCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.files)
}

// Calls returns how many requests op has received.
func (d *FakeDrive) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// FailNext makes the next requests to op answer with the given statuses, in order.
func (d *FakeDrive) FailNext(op string, statuses ...int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], statuses...)
}

// SetProfile replaces the userinfo response.
func (d *FakeDrive) SetProfile(name, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profile = map[string]string{"name": name, "email": email}
}

// Revoked returns the tokens posted to the revoke endpoint.
func (d *FakeDrive) Revoked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.revoked...)
}

// BlockDownloads makes downloads wait until the returned release func is
// called. The entered channel receives once per blocked download.
func (d *FakeDrive) BlockDownloads() (entered <-chan struct{}, release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	d.gateHit = make(chan struct{}, 16)
	gate := d.gate
	var once sync.Once
	return d.gateHit, func() { once.Do(func() { close(gate) }) }
}

// begin counts the call, checks auth and applies injected failures. It
// returns false when the response has already been written.
func (d *FakeDrive) begin(w http.ResponseWriter, r *http.Request, op string, needAuth bool) bool {
	d.mu.Lock()
	d.calls[op]++
	var status int
	if q := d.failures[op]; len(q) > 0 {
		status, d.failures[op] = q[0], q[1:]
	}
	d.mu.Unlock()

	if needAuth && r.Header.Get("Authorization") != "Bearer "+d.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return false
	}
	return true
}

func (d *FakeDrive) handleList(w http.ResponseWriter, r *http.Request) {
	if !d.begin(w, r, OpList, true) {
		return
	}
	name := ""
	q := r.URL.Query().Get("q")
	if _, rest, ok := strings.Cut(q, "name='"); ok {
		name, _, _ = strings.Cut(rest, "'")
	}

	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := struct {
		Files []entry `json:"files"`
	}{Files: []entry{}}

	d.mu.Lock()
	for i := 1; i <= d.nextID; i++ {
		id := fmt.Sprintf("file-%d", i)
		if f, ok := d.files[id]; ok && f.name == name {
			out.Files = append(out.Files, entry{ID: id, Name: f.name})
		}
	}
	d.mu.Unlock()
	writeJSON(w, out)
}

func (d *FakeDrive) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !d.begin(w, r, OpCreate, true) {
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		http.Error(w, "expected multipart/related", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	var meta struct {
		Name string `json:"name"`
	}
	metaPart, err := mr.NextPart()
	if err != nil || json.NewDecoder(metaPart).Decode(&meta) != nil {
		http.Error(w, "bad metadata part", http.StatusBadRequest)
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, "missing media part", http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		http.Error(w, "bad media part", http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	id := d.putLocked(meta.Name, content)
	d.mu.Unlock()
	writeJSON(w, map[string]string{"id": id})
}

func (d *FakeDrive) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !d.begin(w, r, OpUpload, true) {
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")

	d.mu.Lock()
	f, ok := d.files[id]
	if ok {
		f.content = content
	}
	d.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"id": id})
}

func (d *FakeDrive) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !d.begin(w, r, OpDownload, true) {
		return
	}
	d.mu.Lock()
	gate, hit := d.gate, d.gateHit
	d.mu.Unlock()
	if gate != nil {
		hit <- struct{}{}
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	content := d.Content(r.PathValue("id"))
	if content == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(content)
}

func (d *FakeDrive) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !d.begin(w, r, OpProfile, true) {
		return
	}
	d.mu.Lock()
	profile := d.profile
	d.mu.Unlock()
	writeJSON(w, profile)
}

func (d *FakeDrive) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if !d.begin(w, r, OpRevoke, false) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	d.revoked = append(d.revoked, r.PostForm.Get("token"))
	d.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
