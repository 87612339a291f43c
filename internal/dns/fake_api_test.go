package dns

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/digitalocean/godo"
)

// fakeDO serves the subset of the DigitalOcean domain records API the updater uses.
type fakeDO struct {
	mu       sync.Mutex
	zone     string
	records  []godo.DomainRecord
	pageSize int
	nextID   int
	listFail bool

	created []godo.DomainRecordEditRequest
	edited  map[int]godo.DomainRecordEditRequest
	auth    []string
	server  *httptest.Server
}

func newFakeDO(t *testing.T, zone string, records ...godo.DomainRecord) *fakeDO {
	t.Helper()
	f := &fakeDO{
		zone:     zone,
		records:  records,
		pageSize: 2,
		nextID:   1000,
		edited:   map[int]godo.DomainRecordEditRequest{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDO) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, r.Header.Get("Authorization"))
	base := "/v2/domains/" + f.zone + "/records"

	switch {
	case r.Method == http.MethodGet && r.URL.Path == base:
		if f.listFail {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"id": "unauthorized", "message": "Unable to authenticate you"})
			return
		}
		f.list(w, r)

	case r.Method == http.MethodPost && r.URL.Path == base:
		var req godo.DomainRecordEditRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.created = append(f.created, req)
		f.nextID++
		rec := godo.DomainRecord{ID: f.nextID, Type: req.Type, Name: req.Name, Data: req.Data, TTL: req.TTL}
		f.records = append(f.records, rec)
		writeJSON(w, http.StatusCreated, map[string]any{"domain_record": rec})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, base+"/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, base+"/"))
		var req godo.DomainRecordEditRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.edited[id] = req
		writeJSON(w, http.StatusOK, map[string]any{"domain_record": godo.DomainRecord{ID: id, Type: req.Type, Name: req.Name, Data: req.Data}})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"id": "not_found", "message": "The resource you were accessing could not be found."})
	}
}

func (f *fakeDO) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	start := (page - 1) * f.pageSize
	end := start + f.pageSize
	if start > len(f.records) {
		start = len(f.records)
	}
	if end > len(f.records) {
		end = len(f.records)
	}

	pages := map[string]string{}
	pageURL := func(p int) string {
		return fmt.Sprintf("%s/v2/domains/%s/records?page=%d", f.server.URL, f.zone, p)
	}
	lastPage := (len(f.records) + f.pageSize - 1) / f.pageSize
	if page > 1 {
		pages["first"] = pageURL(1)
		pages["prev"] = pageURL(page - 1)
	}
	if end < len(f.records) {
		pages["next"] = pageURL(page + 1)
		pages["last"] = pageURL(lastPage)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"domain_records": f.records[start:end],
		"links":          map[string]any{"pages": pages},
		"meta":           map[string]int{"total": len(f.records)},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
