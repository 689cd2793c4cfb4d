package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// Card describes one tool on the landing page.
type Card struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Endpoint    string `json:"endpoint"`
}

// Catalog lists every tool the service exposes.
var Catalog = []Card{
	{Slug: "images-to-pdf", Title: "Images to PDF", Description: "Combine JPG, PNG, WebP, BMP or TIFF images into one PDF with A4, Letter or image-sized pages.", Category: "image", Endpoint: "/api/v1/images-to-pdf"},
	{Slug: "split-pdf", Title: "Split PDF", Description: "Split a PDF into single pages or into page ranges like 1-3; 5,7.", Category: "pdf", Endpoint: "/api/v1/split-pdf"},
	{Slug: "merge-pdf", Title: "Merge PDF", Description: "Join several PDFs into one document in upload order.", Category: "pdf", Endpoint: "/api/v1/merge-pdf"},
	{Slug: "pdf-to-images", Title: "PDF to Images", Description: "Render PDF pages as JPG or PNG images.", Category: "pdf", Endpoint: "/api/v1/pdf-to-images"},
	{Slug: "page-count", Title: "Page Count", Description: "Count the pages of a PDF.", Category: "pdf", Endpoint: "/api/v1/page-count"},
	{Slug: "password", Title: "Password Generator", Description: "Generate a random password from the character sets you pick.", Category: "security", Endpoint: "/api/v1/password"},
	{Slug: "wordcount", Title: "Word Counter", Description: "Count words and characters in a piece of text.", Category: "text", Endpoint: "/api/v1/wordcount"},
}

// Categories in display order.
var Categories = []string{"pdf", "image", "text", "security"}

type Web struct {
	tpl   *template.Template
	cards []Card
}

func New() *Web {
	tpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))
	return &Web{tpl: tpl, cards: Catalog}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", w.handleIndex)
	mux.HandleFunc("/api/v1/tools", w.handleCatalog)
}

// Filter returns the cards in category cat (empty for all) whose title or
// description contains q, case-insensitively.
func Filter(cards []Card, q, cat string) []Card {
	q = strings.ToLower(strings.TrimSpace(q))
	cat = strings.ToLower(strings.TrimSpace(cat))
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if cat != "" && c.Category != cat {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(c.Title), q) &&
			!strings.Contains(strings.ToLower(c.Description), q) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (w *Web) handleIndex(wr http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(wr, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query().Get("q")
	cat := r.URL.Query().Get("cat")
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := w.tpl.ExecuteTemplate(wr, "index.html", map[string]any{
		"Query":      q,
		"Category":   cat,
		"Categories": Categories,
		"Cards":      Filter(w.cards, q, cat),
	})
	if err != nil {
		log.Error().Err(err).Msg("render landing page")
	}
}

func (w *Web) handleCatalog(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cards := Filter(w.cards, r.URL.Query().Get("q"), r.URL.Query().Get("cat"))
	wr.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(wr).Encode(map[string]any{"tools": cards})
}
