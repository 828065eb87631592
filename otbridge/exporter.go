// Package otbridge replays completed layerz requests into an OpenTracing
// tracer, one span per layer with the parent/child structure preserved.
//
// Register the exporter as a completion handler:
//
//	exp := otbridge.NewExporter(opentracing.GlobalTracer())
//	registry.OnRequestCompleteAsync(exp.Export)
package otbridge

import (
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/zoobzio/layerz"
)

// RequestOperation names the span covering the whole request.
const RequestOperation = "layerz.request"

// Tags set on exported spans.
const (
	TagRequestID  = "request.id"
	TagParentID   = "request.parent_id"
	TagCategory   = "layer.category"
	TagTraced     = "layer.traced"
	TagRootClass  = "layer.root_class"
	TagInstantKey = "instant_key"
	TagProfiled   = "request.profiled"
	TagRemoteIP   = "peer.ip"
)

// Exporter converts finished requests into OpenTracing spans.
type Exporter struct {
	tracer opentracing.Tracer
}

// NewExporter creates an exporter writing to tracer.
func NewExporter(tracer opentracing.Tracer) *Exporter {
	return &Exporter{tracer: tracer}
}

// Export replays req. Unfinished requests are ignored since their layers may
// still change.
func (e *Exporter) Export(req *layerz.Request) {
	if req == nil || !req.Finished() {
		return
	}

	tags := opentracing.Tags{
		TagRequestID:         req.ID,
		string(ext.SpanKind): ext.SpanKindRPCServerEnum,
	}
	for k, v := range req.Annotations() {
		tags[k] = v
	}
	if req.ParentID != "" {
		tags[TagParentID] = req.ParentID
	}
	if key := req.InstantKey(); key != "" {
		tags[TagInstantKey] = key
	}
	if req.Profiled() {
		tags[TagProfiled] = true
	}
	if ip, ok := req.User()[layerz.UserIP]; ok {
		tags[TagRemoteIP] = ip
	}

	root := e.tracer.StartSpan(RequestOperation, opentracing.StartTime(req.StartTime), tags)
	if req.Errored() {
		ext.Error.Set(root, true)
	}

	for _, layer := range req.Layers() {
		e.exportLayer(root.Context(), layer)
	}

	root.FinishWithOptions(opentracing.FinishOptions{FinishTime: req.StopTime})
}

func (e *Exporter) exportLayer(parent opentracing.SpanContext, layer *layerz.Layer) {
	tags := opentracing.Tags{TagCategory: layer.Category}
	if layer.Traced {
		tags[TagTraced] = true
	}
	if layer.RootClass != "" {
		tags[TagRootClass] = layer.RootClass
	}

	sp := e.tracer.StartSpan(
		OperationName(layer),
		opentracing.ChildOf(parent),
		opentracing.StartTime(layer.StartTime),
		tags,
	)
	if layer.Errored {
		ext.Error.Set(sp, true)
	}

	for _, child := range layer.Children {
		e.exportLayer(sp.Context(), child)
	}

	sp.FinishWithOptions(opentracing.FinishOptions{FinishTime: layer.StopTime})
}

// OperationName returns "<category>/<name>" for a layer.
func OperationName(layer *layerz.Layer) string {
	return layer.Category + "/" + layer.Name
}
