package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slugs(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Slug
	}
	return out
}

func TestFilter(t *testing.T) {
	assert.Len(t, Filter(Catalog, "", ""), len(Catalog))
	assert.Equal(t, []string{"images-to-pdf"}, slugs(Filter(Catalog, "", "IMAGE")))
	assert.Equal(t, []string{"merge-pdf"}, slugs(Filter(Catalog, " merge ", "")))
	assert.Equal(t, []string{"split-pdf"}, slugs(Filter(Catalog, "ranges", "pdf")))
	assert.Empty(t, Filter(Catalog, "merge", "text"))
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	New().RegisterRoutes(mux)
	return mux
}

func TestIndex(t *testing.T) {
	mux := newMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?cat=text", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="wordcount"`)
	assert.NotContains(t, body, `id="merge-pdf"`)
	assert.Contains(t, body, `<option value="text" selected>`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?q=%3Cscript%3E", nil))
	assert.Contains(t, rec.Body.String(), "No tools match")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCatalogJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools?cat=pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tools []Card `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"split-pdf", "merge-pdf", "pdf-to-images", "page-count"}, slugs(resp.Tools))
}
