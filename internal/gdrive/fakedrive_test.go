package gdrive

import (
	"crypto/md5" //nolint:gosec // test fixture checksums
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeFile is one entry in a fakeDrive.
type fakeFile struct {
	id       string
	name     string
	parent   string
	mimeType string
	content  []byte
	noSize   bool // omit size from metadata, as for some shared files
	badMD5   bool
	trashed  bool
}

// fakeDrive is an in-memory Drive v3 endpoint serving files.list,
// files.get metadata, and alt=media with Range support.
type fakeDrive struct {
	t        *testing.T
	pageSize int

	mu       sync.Mutex
	files    []fakeFile
	lists    map[string]int // folder id -> files.list calls
	ranges   []string       // Range headers seen on media requests
	ignoreRg bool           // answer ranged requests with the whole body
	failList map[string]int // folder id -> status to return
}

var parentQuery = regexp.MustCompile(`^'((?:[^'\\]|\\.)*)' in parents( and trashed = false)?$`)

func newFakeDrive(t *testing.T, files ...fakeFile) (*fakeDrive, *httptest.Server) {
	t.Helper()

	fd := &fakeDrive{
		t:        t,
		pageSize: 1000,
		files:    files,
		lists:    make(map[string]int),
		failList: make(map[string]int),
	}

	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)

	return fd, srv
}

func (fd *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	switch {
	case r.URL.Path == "/files":
		fd.serveList(w, r)
	case strings.HasPrefix(r.URL.Path, "/files/"):
		fd.serveFile(w, r, strings.TrimPrefix(r.URL.Path, "/files/"))
	default:
		http.NotFound(w, r)
	}
}

func (fd *fakeDrive) serveList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("fields") != listFields || q.Get("pageSize") != "1000" {
		http.Error(w, "unexpected list parameters", http.StatusBadRequest)
		return
	}

	m := parentQuery.FindStringSubmatch(q.Get("q"))
	if m == nil {
		http.Error(w, "bad q", http.StatusBadRequest)
		return
	}

	parent := strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])
	skipTrashed := m[2] != ""
	fd.lists[parent]++

	if status := fd.failList[parent]; status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"list failed"}}`))

		return
	}

	var children []fileResponse

	for _, f := range fd.files {
		if f.parent == parent && !(skipTrashed && f.trashed) {
			children = append(children, fileResponse{ID: f.id, Name: f.name, MimeType: f.mimeType})
		}
	}

	start := 0
	if tok := q.Get("pageToken"); tok != "" {
		start, _ = strconv.Atoi(tok)
	}

	end := min(start+fd.pageSize, len(children))

	resp := listResponse{Files: children[start:end]}
	if end < len(children) {
		resp.NextPageToken = strconv.Itoa(end)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (fd *fakeDrive) serveFile(w http.ResponseWriter, r *http.Request, id string) {
	var file *fakeFile

	for i := range fd.files {
		if fd.files[i].id == id {
			file = &fd.files[i]
		}
	}

	if file == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found: ` + id + `",` +
			`"errors":[{"reason":"notFound"}]}}`))

		return
	}

	if r.URL.Query().Get("alt") != "media" {
		fr := fileResponse{ID: file.id, Name: file.name, MimeType: file.mimeType}
		if !file.noSize {
			fr.Size = strconv.Itoa(len(file.content))
		}

		if !strings.HasPrefix(file.mimeType, googleAppsMimePrefix) {
			sum := md5.Sum(file.content) //nolint:gosec // test fixture
			fr.MD5Checksum = hex.EncodeToString(sum[:])

			if file.badMD5 {
				fr.MD5Checksum = strings.Repeat("0", 32)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fr)

		return
	}

	rng := r.Header.Get("Range")
	fd.ranges = append(fd.ranges, rng)

	if rng == "" || fd.ignoreRg {
		_, _ = w.Write(file.content)
		return
	}

	var from, to int
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &from, &to); err != nil {
		http.Error(w, "bad range", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	to = min(to, len(file.content)-1)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, to, len(file.content)))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(file.content[from : to+1])
}

func (fd *fakeDrive) listCalls(folderID string) int {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return fd.lists[folderID]
}

func folder(id, name, parent string) fakeFile {
	return fakeFile{id: id, name: name, parent: parent, mimeType: FolderMimeType}
}

func file(id, name, parent, content string) fakeFile {
	return fakeFile{id: id, name: name, parent: parent, mimeType: "application/octet-stream", content: []byte(content)}
}
