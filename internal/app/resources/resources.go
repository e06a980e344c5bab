// Package resources embeds the shared page layout and static assets, and boots
// the template engine.
package resources

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// Shared layout pieces (layout_top, layout_bottom, flash_error). Pages live
// with their features and register their own sets.
//
//go:embed templates/*.gohtml
var sharedFS embed.FS

//go:embed assets
var assetsFS embed.FS

var registerOnce sync.Once

// LoadSharedTemplates registers the shared layout with the template engine.
// It must run before the engine boots.
func LoadSharedTemplates() {
	registerOnce.Do(func() {
		templates.Register(templates.Set{
			Name:     "shared",
			FS:       sharedFS,
			Patterns: []string{"templates/*.gohtml"},
		})
	})
}

var boot struct {
	once   sync.Once
	engine *templates.Engine
	err    error
}

// BootTemplates compiles every registered set once and installs the engine
// for the pantry render helpers. Later calls return the first result.
func BootTemplates(dev bool, logger *zap.Logger) error {
	boot.once.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
		LoadSharedTemplates()
		eng := templates.New(dev)
		if err := eng.Boot(logger); err != nil {
			boot.err = err
			return
		}
		templates.UseEngine(eng, logger)
		boot.engine = eng
	})
	return boot.err
}

// Engine returns the booted engine, booting with defaults if Startup has
// not done so (handler tests).
func Engine() (*templates.Engine, error) {
	if err := BootTemplates(false, nil); err != nil {
		return nil, err
	}
	return boot.engine, nil
}

// AssetsHandler serves the embedded assets below prefix. Directory
// listings are not served.
func AssetsHandler(prefix string) http.Handler {
	root, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix(prefix, http.FileServerFS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
