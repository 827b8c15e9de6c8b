package site

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/automatable/automatable-website/internal/httpmw"
	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/pathutil"
)

type Site struct {
	opts  Options
	index *template.Template
	// assetVersion is appended to asset URLs so a deploy busts caches.
	assetVersion string
}

type indexData struct {
	SiteName   string
	Tagline    string
	Year       int
	Version    string
	Debug      bool
	ReloadPath string
}

func New(opts Options) (*Site, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := &Site{opts: opts, assetVersion: opts.Version.ShortCommit()}
	if s.assetVersion == "" || s.assetVersion == "none" {
		s.assetVersion = opts.Version.Version
	}

	tmpl, err := template.New(opts.IndexTemplate).
		Funcs(template.FuncMap{"asset": s.assetURL}).
		ParseFS(opts.Templates, opts.IndexTemplate)
	if err != nil {
		return nil, err
	}
	s.index = tmpl
	return s, nil
}

func (s *Site) assetURL(name string) string {
	u := StaticPath + strings.TrimPrefix(name, "/")
	if s.assetVersion == "" {
		return u
	}
	return u + "?v=" + url.QueryEscape(s.assetVersion)
}

// RegisterRoutes mounts the site on r. Unknown paths and disallowed
// methods both go to NotFound.
func (s *Site) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("home")).Get(HomePath, s.Home)
	r.With(httpmw.Scope("home")).Head(HomePath, s.Home)
	r.With(httpmw.Scope("static")).Get(StaticPath+"*", s.Static)
	r.With(httpmw.Scope("static")).Head(StaticPath+"*", s.Static)
	if s.opts.Debug {
		r.With(httpmw.Scope("reload")).Get(ReloadPath, s.Reload)
	}
	r.NotFound(s.NotFound)
	r.MethodNotAllowed(s.NotFound)
}

// Home renders the index template.
func (s *Site) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := indexData{
		SiteName:   s.opts.SiteName,
		Tagline:    s.opts.Tagline,
		Year:       s.opts.Now().Year(),
		Version:    s.opts.Version.Version,
		Debug:      s.opts.Debug,
		ReloadPath: ReloadPath,
	}

	var buf bytes.Buffer
	if err := s.index.Execute(&buf, data); err != nil {
		log.FromContextOr(ctx, s.opts.Logger).Error(ctx, err, "render home")
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", s.opts.HTMLCacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}

// Static serves a file from the embedded static tree. Anything that does
// not resolve to a regular file is treated as an unknown path.
func (s *Site) Static(w http.ResponseWriter, r *http.Request) {
	name, ok := pathutil.FSName(strings.TrimPrefix(r.URL.Path, StaticPath))
	if !ok {
		s.NotFound(w, r)
		return
	}
	info, err := fs.Stat(s.opts.Static, name)
	if err != nil || info.IsDir() {
		s.NotFound(w, r)
		return
	}
	if cc := cacheControlForFile(name, &s.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	http.ServeFileFS(w, r, s.opts.Static, name)
}

// Reload returns the build id; the debug reload script polls it and
// refreshes the page when it changes.
func (s *Site) Reload(w http.ResponseWriter, r *http.Request) {
	id := s.opts.Version.BuildID
	if id == "" {
		id = s.opts.Version.Version + "+" + s.opts.Version.Commit
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(id))
}

// NotFound redirects to the home page. It is also the response a caller
// gets when the probe gatekeeper refuses them.
func (s *Site) NotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, HomePath, http.StatusFound)
}
