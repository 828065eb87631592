// Package controller instruments HTTP controller dispatch.
//
// Three variants observe the same logical call at different depths of a
// dispatch stack:
//   - Metal wraps a bare http.Handler, the lowest dispatch point.
//   - Base installs gin middleware, covering the whole gin handler chain.
//   - API installs gorilla/mux middleware around matched routes.
//
// Every variant records a "Controller" layer through layerz.Binder.Around.
// When variants are stacked (a Metal-wrapped handler serving a gin engine
// with Base installed) the inner variant sees an open Controller layer and
// delegates without recording a second one.
//
// Install variants once at startup:
//
//	binder := layerz.NewBinder(registry)
//	binder.InstallAll(
//		&controller.Metal{Handler: &server.Handler},
//		&controller.Base{Engine: engine},
//		&controller.API{Router: router},
//	)
package controller

// Variant tags.
const (
	TagMetal = "metal"
	TagBase  = "base"
	TagAPI   = "api"
)
