package site

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/version"
)

var ErrInvalidOptions = errors.New("site: invalid options")

const (
	HomePath   = "/"
	StaticPath = "/static/"
	ReloadPath = "/__reload__/"
)

type Options struct {
	// Logger is used when the request context carries no logger.
	Logger log.Logger

	// Templates must contain IndexTemplate; Static is served under /static/.
	Templates fs.FS
	Static    fs.FS

	IndexTemplate string // default: "index.html"
	SiteName      string // default: "Automatable"
	Tagline       string

	// Debug mounts the reload endpoint and its script.
	Debug   bool
	Version version.Info

	// Now is used for the footer year; defaults to time.Now.
	Now func() time.Time

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=86400"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.IndexTemplate == "" {
		o.IndexTemplate = "index.html"
	}
	if o.SiteName == "" {
		o.SiteName = "Automatable"
	}
	if o.Tagline == "" {
		o.Tagline = "Automation for teams that would rather be building."
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		// assets are not fingerprinted; the ?v= build query busts caches
		o.AssetCacheControl = "public, max-age=86400"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Templates == nil {
		return fmt.Errorf("%w: Templates is nil", ErrInvalidOptions)
	}
	if o.Static == nil {
		return fmt.Errorf("%w: Static is nil", ErrInvalidOptions)
	}
	if _, err := fs.Stat(o.Templates, o.IndexTemplate); err != nil {
		return fmt.Errorf("%w: missing %q in templates: %v", ErrInvalidOptions, o.IndexTemplate, err)
	}
	return nil
}
