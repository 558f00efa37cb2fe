package ckan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/energy-feeds/internal/fetch"
)

// fakePortal serves package_show and datastore_search from in-memory
// resources. A resource page listed in failAt answers 404.
type fakePortal struct {
	mu        sync.Mutex
	resources map[string]int // id -> total records
	order     []string
	failAt    map[string]int // id -> offset
	calls     map[string]int // action -> count
	unsuccess bool
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		resources: map[string]int{},
		failAt:    map[string]int{},
		calls:     map[string]int{},
	}
}

func (p *fakePortal) add(id string, n int) {
	p.resources[id] = n
	p.order = append(p.order, id)
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	action := strings.TrimPrefix(r.URL.Path, apiPath)
	p.calls[action]++
	q := r.URL.Query()

	switch action {
	case "package_list":
		writeJSON(w, map[string]any{"success": true, "result": []string{"pld_horario_submercado", "carga"}})
	case "package_show":
		if q.Get("id") != "pld_horario_submercado" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		res := []map[string]any{}
		for _, id := range p.order {
			res = append(res, map[string]any{"id": id, "name": "PLD " + id, "format": "CSV", "last_modified": "2024-02-01T10:00:00"})
		}
		writeJSON(w, map[string]any{"success": true, "result": map[string]any{"resources": res}})
	case "datastore_search":
		if p.unsuccess {
			writeJSON(w, map[string]any{"success": false, "error": map[string]any{"message": "boom"}})
			return
		}
		id := q.Get("resource_id")
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		if at, ok := p.failAt[id]; ok && at == offset {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		total := p.resources[id]
		records := []map[string]any{}
		for i := offset; i < total && i < offset+limit; i++ {
			records = append(records, map[string]any{"_id": i + 1, "MES_REFERENCIA": 202401, "SUBMERCADO": id})
		}
		writeJSON(w, map[string]any{"success": true, "result": map[string]any{"records": records}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakePortal) count(action string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[action]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, p *fakePortal, pageSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	getter := fetch.New(fetch.Config{Timeout: 5 * time.Second, MaxAttempts: 1, BackoffBase: time.Millisecond}, nil)
	return New(getter, srv.URL, pageSize, nil)
}

func TestDownloadProductStopsOnEmptyPage(t *testing.T) {
	p := newFakePortal()
	p.add("res-1", 30000)
	c := newTestClient(t, p, DefaultPageSize)

	tbl, err := c.DownloadProduct(context.Background(), DefaultProduct)
	require.NoError(t, err)
	assert.Equal(t, 30000, tbl.Len())
	assert.Equal(t, 4, p.count("datastore_search"))
}

func TestDownloadProductPreservesPageOrder(t *testing.T) {
	p := newFakePortal()
	p.add("res-1", 5)
	c := newTestClient(t, p, 2)

	tbl, err := c.DownloadProduct(context.Background(), DefaultProduct)
	require.NoError(t, err)
	require.Equal(t, 5, tbl.Len())

	idCol := -1
	for i, col := range tbl.Columns {
		if col == "_id" {
			idCol = i
		}
	}
	require.GreaterOrEqual(t, idCol, 0)
	for i, row := range tbl.Rows {
		assert.Equal(t, json.Number(strconv.Itoa(i+1)), row[idCol])
	}
}

func TestDownloadProductKeepsRowsOfFailedResource(t *testing.T) {
	p := newFakePortal()
	p.add("res-a", 5)
	p.add("res-b", 3)
	p.failAt["res-a"] = 4
	c := newTestClient(t, p, 2)

	tbl, err := c.DownloadProduct(context.Background(), DefaultProduct)
	require.NoError(t, err)
	// res-a: pages at 0 and 2 succeed (4 rows), page at 4 fails. res-b: all 3.
	assert.Equal(t, 7, tbl.Len())
}

func TestDownloadProductUnsuccessfulResponseEndsResource(t *testing.T) {
	p := newFakePortal()
	p.add("res-1", 10)
	p.unsuccess = true
	c := newTestClient(t, p, 2)

	tbl, err := c.DownloadProduct(context.Background(), DefaultProduct)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, 1, p.count("datastore_search"))
}

func TestDownloadProductUnknownProduct(t *testing.T) {
	p := newFakePortal()
	c := newTestClient(t, p, 2)

	_, err := c.DownloadProduct(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, fetch.StatusOf(err))
}

func TestDownloadProductWithoutResources(t *testing.T) {
	p := newFakePortal()
	c := newTestClient(t, p, 2)

	tbl, err := c.DownloadProduct(context.Background(), DefaultProduct)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, 0, p.count("datastore_search"))
}

func TestListProductsAndResources(t *testing.T) {
	p := newFakePortal()
	p.add("res-1", 1)
	c := newTestClient(t, p, 2)

	names, err := c.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pld_horario_submercado", "carga"}, names)

	res, err := c.Resources(context.Background(), DefaultProduct)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, Resource{ID: "res-1", Name: "PLD res-1", Format: "CSV", LastModified: "2024-02-01T10:00:00"}, res[0])
}

func TestHostFor(t *testing.T) {
	h, err := HostFor("CCEE")
	require.NoError(t, err)
	assert.Equal(t, "https://dadosabertos.ccee.org.br", h)

	_, err = HostFor("epe")
	assert.Error(t, err)
}

func TestCallBuildsActionURL(t *testing.T) {
	var got *url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL
		writeJSON(w, map[string]any{"success": true, "result": []string{}})
	}))
	defer srv.Close()

	c := New(fetch.New(fetch.Config{MaxAttempts: 1}, nil), srv.URL+"/", 0, nil)
	_, err := c.ListProducts(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/api/3/action/package_list", got.Path)
	assert.Equal(t, DefaultPageSize, c.pageSize)
}
