package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/local/minitools/internal/password"
	"github.com/local/minitools/internal/textstats"
	"github.com/local/minitools/internal/tools"
)

// maxTextBytes bounds word counter input.
const maxTextBytes = 5 << 20

func (o *Orchestrator) handlePageCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := o.parseUpload(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()
	inputs, err := o.readInputs(r.Context(), r.MultipartForm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(inputs) != 1 {
		writeError(w, r, tools.Invalid(fmt.Errorf("expected exactly one PDF, got %d files", len(inputs))))
		return
	}
	n, err := o.deps.Tools.PageCount(inputs[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": inputs[0].Name, "pages": n})
}

// handlePassword reads options from the query string or a form body. When
// no character set is named, every set is used.
func (o *Orchestrator) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, tools.Invalid(err))
		return
	}
	opts, err := passwordOptions(r.Form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pw, err := password.Generate(opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{"password": pw, "length": len(pw)})
}

func passwordOptions(v url.Values) (password.Options, error) {
	opts := password.DefaultOptions()
	if s := strings.TrimSpace(v.Get("length")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return opts, tools.Invalid(fmt.Errorf("length must be an integer"))
		}
		opts.Length = password.ClampLength(n)
	}
	named := false
	for _, k := range []string{"lower", "upper", "digits", "symbols"} {
		if v.Has(k) {
			named = true
		}
	}
	if named {
		opts.Lower = parseBool(v.Get("lower"))
		opts.Upper = parseBool(v.Get("upper"))
		opts.Digits = parseBool(v.Get("digits"))
		opts.Symbols = parseBool(v.Get("symbols"))
	}
	return opts, nil
}

// handleWordCount accepts {"text": ...}, a form field "text" or a plain body.
func (o *Orchestrator) handleWordCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBytes)
	text, err := readText(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textstats.Count(text))
}

func readText(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return "", err
			}
			return "", tools.Invalid(errors.New("invalid json"))
		}
		return body.Text, nil
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxTextBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", tools.Invalid(err)
		}
		return r.FormValue("text"), nil
	default:
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
