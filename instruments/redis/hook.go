// Package redis records a "Redis" layer for every command sent through a
// go-redis client.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zoobzio/layerz"
)

// TagRedis is the variant tag.
const TagRedis = "redis"

// Layer names used when a command carries no name.
const (
	UnknownCommand = "Unknown"
	PipelineName   = "pipeline"
)

// Client instruments a go-redis client. One client is instrumented per
// binder; install a second one with its own hook via NewHook.
type Client struct {
	Client goredis.UniversalClient
}

// Tag implements layerz.Variant.
func (v *Client) Tag() string { return TagRedis }

// Available implements layerz.Variant.
func (v *Client) Available() bool {
	return v != nil && v.Client != nil
}

// Install implements layerz.Variant.
func (v *Client) Install(b *layerz.Binder) error {
	if !v.Available() {
		return layerz.ErrVariantNotAvailable
	}
	v.Client.AddHook(NewHook(b))
	return nil
}

// Hook is a goredis.Hook recording commands and pipelines.
type Hook struct {
	binder *layerz.Binder
}

// NewHook creates a hook recording into binder.
func NewHook(binder *layerz.Binder) *Hook {
	return &Hook{binder: binder}
}

// DialHook implements goredis.Hook. Dials are not recorded.
func (h *Hook) DialHook(next goredis.DialHook) goredis.DialHook {
	return next
}

// ProcessHook implements goredis.Hook.
func (h *Hook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		return h.around(ctx, commandName(cmd), func(ctx context.Context) error {
			return next(ctx, cmd)
		})
	}
}

// ProcessPipelineHook implements goredis.Hook.
func (h *Hook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return h.around(ctx, PipelineName, func(ctx context.Context) error {
			return next(ctx, cmds)
		})
	}
}

// around treats goredis.Nil (a cache miss) as success for the layer while
// still returning it to the caller.
func (h *Hook) around(ctx context.Context, name string, call func(context.Context) error) error {
	var result error
	err := h.binder.Around(ctx, layerz.Entry{
		Category: layerz.CategoryRedis,
		Name:     name,
	}, func(ctx context.Context) error {
		result = call(ctx)
		if errors.Is(result, goredis.Nil) {
			return nil
		}
		return result
	})
	if err == nil {
		return result
	}
	return err
}

func commandName(cmd goredis.Cmder) string {
	if cmd == nil {
		return UnknownCommand
	}
	if name := cmd.Name(); name != "" {
		return name
	}
	return UnknownCommand
}
