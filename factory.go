package cimodel

import (
	"context"
	"strings"
)

// Factory builds records and collections that share one set of injected
// collaborators. It holds no per-record state and is safe for concurrent use
// once constructed.
//
//	registry := cimodel.NewRegistry()
//	registry.MustRegister("billing.UserAccount", cimodel.Definition{})
//
//	factory, err := cimodel.NewFactory(cimodel.Config{
//	    Gateway:   gateway,
//	    Registry:  registry,
//	    Namespace: "billing",
//	})
//
//	account, err := factory.RecordByID(ctx, "UserAccount", 42)
type Factory struct {
	gateway   Gateway
	registry  *Registry
	cache     Cache
	logger    Logger
	metrics   Metrics
	equality  Equality
	namespace string
}

// NewFactory validates cfg and creates a factory
func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &Factory{
		gateway:   cfg.Gateway,
		registry:  cfg.Registry,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		equality:  cfg.Equality,
		namespace: cfg.Namespace,
	}, nil
}

// Qualify returns the registry name for typeName. Names that already contain
// the namespace separator are returned unchanged.
func (f *Factory) Qualify(typeName string) string {
	if f.namespace == "" || strings.Contains(typeName, NamespaceSeparator) {
		return typeName
	}
	return f.namespace + NamespaceSeparator + typeName
}

func (f *Factory) resolve(typeName string) (string, Definition, error) {
	qualified := f.Qualify(typeName)
	def, ok := f.registry.Lookup(qualified)
	if !ok {
		return "", Definition{}, WithContext(ErrUnknownType, map[string]interface{}{
			"type":     typeName,
			"resolved": qualified,
		})
	}
	return qualified, def, nil
}

// build creates an empty record and runs the type's Init hook
func (f *Factory) build(qualified string, def Definition) *Record {
	r := newRecord(f, qualified, def)
	r.logger = WithFields(f.logger, "type", qualified)
	if def.Init != nil {
		def.Init(r)
	}
	return r
}

// Record creates an empty record of the named type
func (f *Factory) Record(typeName string) (*Record, error) {
	qualified, def, err := f.resolve(typeName)
	if err != nil {
		return nil, err
	}
	return f.build(qualified, def), nil
}

// RecordWithData creates a record hydrated from a row known to be persisted.
// The record exists and is not modified. A nil row gives an empty record,
// as Record does.
func (f *Factory) RecordWithData(typeName string, data Row) (*Record, error) {
	r, err := f.Record(typeName)
	if err != nil {
		return nil, err
	}
	if data != nil {
		r.hydrate(data, nil)
	}
	return r, nil
}

// RecordByID creates a record of the named type and loads it by id. A missing
// row is not an error: check Exists.
func (f *Factory) RecordByID(ctx context.Context, typeName string, id any) (*Record, error) {
	r, err := f.Record(typeName)
	if err != nil {
		return nil, err
	}
	if err := r.LoadByID(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// NewCollection creates an empty collection using the factory's equality
// policy and metrics
func (f *Factory) NewCollection(indexFields ...string) *Collection {
	return newCollection(f.equality, f.metrics, indexFields)
}

// Gateway returns the shared storage gateway
func (f *Factory) Gateway() Gateway { return f.gateway }
func (f *Factory) Registry() *Registry { return f.registry }
func (f *Factory) Cache() Cache { return f.cache }
func (f *Factory) Logger() Logger { return f.logger }
func (f *Factory) Metrics() Metrics { return f.metrics }
func (f *Factory) Equality() Equality { return f.equality }
func (f *Factory) Namespace() string { return f.namespace }
