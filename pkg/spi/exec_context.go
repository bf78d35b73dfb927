package spi

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/channel"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/json"
	"github.com/ajitpratap0/quickload/pkg/logger"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/observability"
	"github.com/ajitpratap0/quickload/pkg/record"
)

// ExecContext is the per-transaction context shared by the executor and the
// plugins it runs. The Schema is published once by the format-decoding
// plugin and read-only afterwards; everything else is fixed at construction.
type ExecContext struct {
	jobID   string
	plugin  string
	log     *zap.Logger
	mem     memory.Allocator
	system  config.SystemConfig
	plugins Plugins
	tracer  *observability.PluginTracer

	mu     sync.RWMutex
	schema *record.Schema
}

// Option configures an ExecContext.
type Option func(*ExecContext)

// WithJobID overrides the generated job id.
func WithJobID(id string) Option {
	return func(e *ExecContext) { e.jobID = id }
}

// WithLogger sets the base logger; job fields are added to it.
func WithLogger(l *zap.Logger) Option {
	return func(e *ExecContext) { e.log = l }
}

// WithAllocator sets the allocator page buffers come from.
func WithAllocator(mem memory.Allocator) Option {
	return func(e *ExecContext) { e.mem = mem }
}

// WithPlugins sets the resolver used by plugins that delegate to others.
func WithPlugins(p Plugins) Option {
	return func(e *ExecContext) { e.plugins = p }
}

// WithPluginName labels metrics, spans and logs with the input plugin type.
func WithPluginName(name string) Option {
	return func(e *ExecContext) { e.plugin = name }
}

// NewExecContext returns a context for one transaction.
func NewExecContext(system config.SystemConfig, opts ...Option) *ExecContext {
	e := &ExecContext{system: system}
	for _, opt := range opts {
		opt(e)
	}
	if e.jobID == "" {
		e.jobID = uuid.NewString()
	}
	if e.log == nil {
		e.log = logger.Get()
	}
	if e.mem == nil {
		e.mem = memory.NewGoAllocator()
	}
	e.log = e.log.With(zap.String("job_id", e.jobID))
	if e.plugin != "" {
		e.log = e.log.With(zap.String("plugin", e.plugin))
	}
	e.tracer = observability.NewPluginTracer(e.pluginLabel(), e.jobID)
	return e
}

// JobID returns the transaction's job id.
func (e *ExecContext) JobID() string { return e.jobID }

// PluginName returns the input plugin type, if known.
func (e *ExecContext) PluginName() string { return e.plugin }

// Logger returns a logger carrying the job fields.
func (e *ExecContext) Logger() *zap.Logger { return e.log }

// Allocator returns the allocator for page buffers.
func (e *ExecContext) Allocator() memory.Allocator { return e.mem }

// System returns the engine settings.
func (e *ExecContext) System() config.SystemConfig { return e.system }

// PageSize returns the number of records per page.
func (e *ExecContext) PageSize() int { return e.system.Exec.PageSize }

// ChannelCapacity returns the number of pages a channel buffers.
func (e *ExecContext) ChannelCapacity() int { return e.system.Exec.ChannelCapacity }

// Tracer returns the plugin tracer of the transaction.
func (e *ExecContext) Tracer() *observability.PluginTracer { return e.tracer }

// Plugins returns the plugin resolver.
func (e *ExecContext) Plugins() Plugins { return e.plugins }

// Context decorates ctx with the job fields read by logger.WithContext.
func (e *ExecContext) Context(ctx context.Context) context.Context {
	ctx = logger.ContextWithJob(ctx, e.jobID)
	if e.plugin != "" {
		ctx = logger.ContextWithPlugin(ctx, e.plugin)
	}
	return ctx
}

// SetSchema publishes the job's schema. It may be called once; a second
// call is a protocol violation.
func (e *ExecContext) SetSchema(s *record.Schema) error {
	if s == nil {
		return errors.New(errors.ErrorTypeValidation, "schema is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema != nil {
		return errors.New(errors.ErrorTypeChannelProtocol, "schema already declared for this transaction").
			WithDetail("schema", e.schema.String())
	}
	e.schema = s
	e.log.Debug("schema declared", zap.Stringer("schema", s))
	return nil
}

// Schema returns the declared schema, or nil before SetSchema.
func (e *ExecContext) Schema() *record.Schema {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schema
}

// RequireSchema returns the declared schema or an error if none was set.
func (e *ExecContext) RequireSchema() (*record.Schema, error) {
	if s := e.Schema(); s != nil {
		return s, nil
	}
	return nil, errors.New(errors.ErrorTypeChannelProtocol, "no schema declared for this transaction")
}

// NewPageChannel opens a channel sized by the engine settings.
func (e *ExecContext) NewPageChannel() *channel.PageChannel {
	return channel.New(e.ChannelCapacity())
}

// StartPluginThread starts work on a plugin thread whose context carries
// the job fields.
func (e *ExecContext) StartPluginThread(ctx context.Context, name string, work func(ctx context.Context) error) *PluginThread {
	return StartPluginThread(e.Context(ctx), name, work)
}

// NewPageBuilder returns a builder for the declared schema pushing to out.
// Sealed pages are counted into report when it is non-nil, and into the
// page metrics.
func (e *ExecContext) NewPageBuilder(out record.PageSink, report *Report) (*record.PageBuilder, error) {
	schema, err := e.RequireSchema()
	if err != nil {
		return nil, err
	}
	label := e.pluginLabel()
	hook := func(p *record.Page) {
		n := p.Records()
		metrics.PagesSealed.WithLabelValues(label).Inc()
		metrics.RecordsProduced.WithLabelValues(label).Add(float64(n))
		observability.RecordPageSealed(context.Background(), label, n)
		if report != nil {
			report.Pages++
			report.Records += int64(n)
		}
	}
	return record.NewPageBuilder(e.mem, schema, out, e.PageSize(), record.WithSealHook(hook)), nil
}

// DumpTask serializes a plugin's task state.
func (e *ExecContext) DumpTask(v interface{}) (TaskSource, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to dump task state")
	}
	return TaskSource(data), nil
}

// LoadTask restores task state written by DumpTask.
func (e *ExecContext) LoadTask(task TaskSource, v interface{}) error {
	if err := json.Unmarshal(task, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to load task state")
	}
	return nil
}

func (e *ExecContext) pluginLabel() string {
	if e.plugin == "" {
		return "unknown"
	}
	return e.plugin
}
