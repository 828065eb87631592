package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/zoobzio/layerz"
)

// NameFunc resolves the layer name of an inbound request.
type NameFunc func(r *http.Request) string

// Metal instruments the bare http.Handler stored at Handler.
// Install replaces the handler in place, so pass the address of the field
// that serves traffic, e.g. &server.Handler.
//
// Metal runs before any routing, so without a Name resolver its layer name
// is provisional: the matched http.ServeMux pattern when Handler is a
// ServeMux, else the request method. A gin or mux variant installed
// further in replaces it with its route name.
type Metal struct {
	Handler *http.Handler
	// Name resolves layer names; the result is final.
	Name NameFunc
}

// Tag implements layerz.Variant.
func (m *Metal) Tag() string { return TagMetal }

// Available implements layerz.Variant.
func (m *Metal) Available() bool {
	return m != nil && m.Handler != nil && *m.Handler != nil
}

// Install implements layerz.Variant.
func (m *Metal) Install(b *layerz.Binder) error {
	if !m.Available() {
		return layerz.ErrVariantNotAvailable
	}
	*m.Handler = Wrap(b, *m.Handler, m.Name)
	return nil
}

// Wrap returns next recording a Controller layer per request.
// Panics raised by next propagate unchanged after the layer is flagged.
func Wrap(b *layerz.Binder, next http.Handler, name NameFunc) http.Handler {
	provisional := name == nil
	if provisional {
		name = routeLevelName(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := layerz.Entry{
			Category:    layerz.CategoryController,
			Name:        name(r),
			Provisional: provisional,
			Request:     r,
		}
		_ = b.Around(r.Context(), entry, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
	})
}

// routeLevelName names requests without using the raw path.
func routeLevelName(next http.Handler) NameFunc {
	mux, _ := next.(*http.ServeMux)
	return func(r *http.Request) string {
		if mux != nil {
			if _, pattern := mux.Handler(r); pattern != "" {
				return pattern
			}
		}
		if r.Pattern != "" {
			return r.Pattern
		}
		return r.Method
	}
}

// pathName names a layer after the request path. Routers fall back to it
// when no route matched.
func pathName(r *http.Request) string {
	path := strings.Trim(r.URL.Path, "/")
	if path == "" {
		return "root"
	}
	return path
}
