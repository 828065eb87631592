package controller

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/zoobzio/layerz"
)

// Base instruments a gin engine, covering its whole handler chain.
// gin binds middleware to routes when they are registered, so install Base
// before adding routes.
type Base struct {
	Engine *gin.Engine
}

// Tag implements layerz.Variant.
func (v *Base) Tag() string { return TagBase }

// Available implements layerz.Variant.
func (v *Base) Available() bool {
	return v != nil && v.Engine != nil
}

// Install implements layerz.Variant.
func (v *Base) Install(b *layerz.Binder) error {
	if !v.Available() {
		return layerz.ErrVariantNotAvailable
	}
	v.Engine.Use(Middleware(b))
	return nil
}

// Middleware records a Controller layer around the rest of the gin chain.
// Errors attached to the context by later handlers flag the layer; they stay
// on the context untouched. This variant allows deep-profiling attribution,
// tagging the layer with the matched handler name.
func Middleware(b *layerz.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = pathName(c.Request)
		}

		entry := layerz.Entry{
			Category:  layerz.CategoryController,
			Name:      name,
			RootClass: c.HandlerName(),
			Profile:   true,
			Request:   c.Request,
		}
		_ = b.Around(c.Request.Context(), entry, func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			before := len(c.Errors)
			c.Next()
			if len(c.Errors) > before {
				return c.Errors.Last()
			}
			return nil
		})
	}
}
