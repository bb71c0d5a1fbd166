// Package docstoretest runs an in-process document store that speaks the subset
// of the REST protocol used by docstore.Client: get, paged list, create, masked
// and preconditioned patch, delete, and atomic commit with array transforms.
package docstoretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"socialsync/docstore"
)

const (
	Project  = "test-project"
	Database = "(default)"
)

type stored struct {
	fields     docstore.Fields
	createTime time.Time
	updateTime time.Time
}

type failure struct {
	status  int
	code    string
	message string
}

// Server is a fake document store backed by a map.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]*stored         // keyed by collection/id
	raw      map[string]json.RawMessage // injected list entries, keyed by collection/id
	last     time.Time
	token    string
	failures []failure
	requests int
}

// NewServer starts a fake store and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		docs: map[string]*stored{},
		raw:  map[string]json.RawMessage{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value to pass to docstore.NewClient.
func (s *Server) BaseURL() string {
	return s.URL + "/v1"
}

// RequireToken makes the server reject any other bearer token with 401.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FailNext makes the next request fail with status and message.
func (s *Server) FailNext(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, code: statusCode(status), message: message})
}

// Requests is the number of requests served so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Put stores fields as collection/id, replacing any previous document.
func (s *Server) Put(collection, id string, fields docstore.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	s.docs[collection+"/"+id] = &stored{fields: cloneFields(fields), createTime: now, updateTime: now}
}

// PutRaw injects a verbatim list entry, e.g. a malformed document.
func (s *Server) PutRaw(collection, id string, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[collection+"/"+id] = json.RawMessage(raw)
}

// Fields returns a copy of the stored fields of collection/id, or nil.
func (s *Server) Fields(collection, id string) docstore.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[collection+"/"+id]
	if !ok {
		return nil
	}
	return cloneFields(d.fields)
}

// tick returns a strictly increasing microsecond timestamp. Callers hold mu.
func (s *Server) tick() time.Time {
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Server) root() string {
	return fmt.Sprintf("projects/%s/databases/%s/documents", Project, Database)
}

func (s *Server) name(key string) string {
	return s.root() + "/" + key
}

func (s *Server) render(key string, d *stored) docstore.Document {
	return docstore.Document{
		Name:       s.name(key),
		Fields:     d.fields,
		CreateTime: d.createTime,
		UpdateTime: d.updateTime,
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	if len(s.failures) > 0 {
		f := s.failures[0]
		s.failures = s.failures[1:]
		writeError(w, f.status, f.code, f.message)
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Request had invalid authentication credentials.")
		return
	}

	prefix := "/v1/" + s.root()
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown path "+r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	if rest == ":commit" && r.Method == http.MethodPost {
		s.commit(w, r)
		return
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.list(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPost:
		s.create(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodGet:
		s.get(w, parts[0]+"/"+parts[1])
	case len(parts) == 2 && r.Method == http.MethodPatch:
		s.patch(w, r, parts[0]+"/"+parts[1])
	case len(parts) == 2 && r.Method == http.MethodDelete:
		delete(s.docs, parts[0]+"/"+parts[1])
		writeJSON(w, http.StatusOK, struct{}{})
	default:
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unsupported "+r.Method+" "+rest)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, collection string) {
	var keys []string
	for key := range s.docs {
		if strings.HasPrefix(key, collection+"/") {
			keys = append(keys, key)
		}
	}
	for key := range s.raw {
		if strings.HasPrefix(key, collection+"/") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if size <= 0 {
		size = 300
	}
	end := min(offset+size, len(keys))
	if offset > end {
		offset = end
	}

	page := struct {
		Documents     []any  `json:"documents,omitempty"`
		NextPageToken string `json:"nextPageToken,omitempty"`
	}{}
	for _, key := range keys[offset:end] {
		if raw, ok := s.raw[key]; ok {
			page.Documents = append(page.Documents, raw)
			continue
		}
		page.Documents = append(page.Documents, s.render(key, s.docs[key]))
	}
	if end < len(keys) {
		page.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) get(w http.ResponseWriter, key string) {
	d, ok := s.docs[key]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Document %q not found.", s.name(key)))
		return
	}
	writeJSON(w, http.StatusOK, s.render(key, d))
}

type body struct {
	Fields docstore.Fields `json:"fields"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, collection string) {
	var b body
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	id := r.URL.Query().Get("documentId")
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	}
	key := collection + "/" + id
	if _, exists := s.docs[key]; exists {
		writeError(w, http.StatusConflict, "ALREADY_EXISTS", "Document already exists: "+s.name(key))
		return
	}
	now := s.tick()
	d := &stored{fields: nonNilFields(b.Fields), createTime: now, updateTime: now}
	s.docs[key] = d
	writeJSON(w, http.StatusOK, s.render(key, d))
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request, key string) {
	var b body
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	query := r.URL.Query()
	var pre *docstore.Precondition
	if v := query.Get("currentDocument.exists"); v != "" {
		exists := v == "true"
		pre = &docstore.Precondition{Exists: &exists}
	}
	if v := query.Get("currentDocument.updateTime"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		pre = docstore.UpdatedAt(t)
	}
	if status, code, msg := s.check(key, pre); status != 0 {
		writeError(w, status, code, msg)
		return
	}

	d := s.apply(key, b.Fields, query["updateMask.fieldPaths"], s.tick())
	writeJSON(w, http.StatusOK, s.render(key, d))
}

// check evaluates a precondition against key. Callers hold mu.
func (s *Server) check(key string, pre *docstore.Precondition) (int, string, string) {
	if pre == nil {
		return 0, "", ""
	}
	d, exists := s.docs[key]
	if pre.Exists != nil {
		if *pre.Exists && !exists {
			return http.StatusNotFound, "NOT_FOUND", "No document to update: " + s.name(key)
		}
		if !*pre.Exists && exists {
			return http.StatusConflict, "ALREADY_EXISTS", "Document already exists: " + s.name(key)
		}
	}
	if pre.UpdateTime != nil {
		if !exists {
			return http.StatusNotFound, "NOT_FOUND", "No document to update: " + s.name(key)
		}
		if !d.updateTime.Equal(*pre.UpdateTime) {
			return http.StatusBadRequest, "FAILED_PRECONDITION", "the stored version does not match the required base version"
		}
	}
	return 0, "", ""
}

// apply writes fields into key, honoring mask. Callers hold mu.
func (s *Server) apply(key string, fields docstore.Fields, mask []string, now time.Time) *stored {
	d, ok := s.docs[key]
	if !ok {
		d = &stored{fields: docstore.Fields{}, createTime: now}
		s.docs[key] = d
	}
	if len(mask) == 0 {
		d.fields = nonNilFields(cloneFields(fields))
	} else {
		next := cloneFields(d.fields)
		for _, path := range mask {
			if v, ok := fields[path]; ok {
				next[path] = v
			} else {
				delete(next, path)
			}
		}
		d.fields = next
	}
	d.updateTime = now
	return d
}

func (s *Server) transform(key string, transforms []docstore.FieldTransform, now time.Time) []docstore.Value {
	d, ok := s.docs[key]
	if !ok {
		d = &stored{fields: docstore.Fields{}, createTime: now}
		s.docs[key] = d
	}
	next := cloneFields(d.fields)
	results := make([]docstore.Value, 0, len(transforms))
	for _, ft := range transforms {
		current := next[ft.FieldPath].ArrayValue()
		switch {
		case ft.AppendMissingElements != nil:
			out := append([]docstore.Value{}, current...)
			for _, v := range ft.AppendMissingElements.Values {
				if !contains(out, v) {
					out = append(out, v)
				}
			}
			next[ft.FieldPath] = docstore.Array(out...)
		case ft.RemoveAllFromArray != nil:
			out := []docstore.Value{}
			for _, v := range current {
				if !contains(ft.RemoveAllFromArray.Values, v) {
					out = append(out, v)
				}
			}
			next[ft.FieldPath] = docstore.Array(out...)
		case ft.SetToServerValue == "REQUEST_TIME":
			next[ft.FieldPath] = docstore.Timestamp(now)
		}
		results = append(results, docstore.Null())
	}
	d.fields = next
	d.updateTime = now
	return results
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Writes []docstore.Write `json:"writes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	// validate every precondition before touching any document
	for _, wr := range req.Writes {
		key, ok := s.keyOf(wr)
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "write names no document")
			return
		}
		if status, code, msg := s.check(key, wr.CurrentDocument); status != 0 {
			writeError(w, status, code, msg)
			return
		}
	}

	now := s.tick()
	result := docstore.CommitResult{CommitTime: now}
	for _, wr := range req.Writes {
		key, _ := s.keyOf(wr)
		var transformResults []docstore.Value
		switch {
		case wr.Update != nil:
			var mask []string
			if wr.UpdateMask != nil {
				mask = wr.UpdateMask.FieldPaths
			}
			s.apply(key, wr.Update.Fields, mask, now)
			if len(wr.UpdateTransforms) > 0 {
				transformResults = s.transform(key, wr.UpdateTransforms, now)
			}
		case wr.Transform != nil:
			transformResults = s.transform(key, wr.Transform.FieldTransforms, now)
		}
		result.WriteResults = append(result.WriteResults, docstore.WriteResult{
			UpdateTime:       now,
			TransformResults: transformResults,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) keyOf(wr docstore.Write) (string, bool) {
	var name string
	switch {
	case wr.Update != nil:
		name = wr.Update.Name
	case wr.Transform != nil:
		name = wr.Transform.Document
	}
	prefix := s.root() + "/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return strings.TrimPrefix(name, prefix), true
}

func contains(values []docstore.Value, v docstore.Value) bool {
	for _, e := range values {
		if e.Equal(v) {
			return true
		}
	}
	return false
}

func cloneFields(f docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func nonNilFields(f docstore.Fields) docstore.Fields {
	if f == nil {
		return docstore.Fields{}
	}
	return f
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "ABORTED"
	}
	return "INTERNAL"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{"error": map[string]any{"code": status, "message": message, "status": code}}
	writeJSON(w, status, payload)
}
