package controller

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zoobzio/layerz"
)

// API instruments a gorilla/mux router.
type API struct {
	Router *mux.Router
}

// Tag implements layerz.Variant.
func (v *API) Tag() string { return TagAPI }

// Available implements layerz.Variant.
func (v *API) Available() bool {
	return v != nil && v.Router != nil
}

// Install implements layerz.Variant.
func (v *API) Install(b *layerz.Binder) error {
	if !v.Available() {
		return layerz.ErrVariantNotAvailable
	}
	v.Router.Use(MuxMiddleware(b))
	return nil
}

// MuxMiddleware records a Controller layer named after the matched route.
func MuxMiddleware(b *layerz.Binder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := layerz.Entry{
				Category: layerz.CategoryController,
				Name:     routeName(r),
				Request:  r,
			}
			_ = b.Around(r.Context(), entry, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
		})
	}
}

// routeName prefers the route name, then its path template.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return pathName(r)
}
