package cimodel

import (
	"sort"
	"strings"
	"sync"
)

// NamespaceSeparator separates a namespace from a short type name ("billing.UserAccount").
const NamespaceSeparator = "."

// DefaultIDField is the primary key field used when a Definition leaves IDField empty.
const DefaultIDField = "id"

// DeleteMode selects the condition Record.Delete sends to the gateway.
type DeleteMode int

const (
	// DeleteByID deletes the row whose id field equals the record's id field value.
	DeleteByID DeleteMode = iota
	// DeleteByFullRow matches every current field of the record. Use it only
	// for tables without a usable identifier: any field changed since the row
	// was loaded makes the delete miss.
	DeleteByFullRow
)

func (m DeleteMode) String() string {
	switch m {
	case DeleteByID:
		return "by_id"
	case DeleteByFullRow:
		return "by_full_row"
	}
	return "unknown"
}

// Definition describes a record type.
type Definition struct {
	// Table overrides the table name derived from the short type name.
	Table string

	// IDField names the primary key field. Defaults to "id".
	IDField string

	// AllowInsertWithoutID accepts inserts for which the gateway returns no
	// identifier, e.g. log tables without a generated key.
	AllowInsertWithoutID bool

	DeleteMode DeleteMode

	// Init runs on every new record of this type after the factory has
	// injected its collaborators and before any row data is applied.
	Init func(r *Record)
}

func (d Definition) idField() string {
	if d.IDField == "" {
		return DefaultIDField
	}
	return d.IDField
}

// Registry maps qualified type names to their definitions. Populate it at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Definition)}
}

// Register adds a type. name is the qualified name, e.g. "billing.UserAccount",
// or a bare short name when no namespace is used.
func (r *Registry) Register(name string, def Definition) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, NamespaceSeparator) {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "name",
			"value":  name,
			"reason": "type name must end with a short name",
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return WithContext(ErrDuplicateType, map[string]interface{}{"type": name})
	}
	r.types[name] = def
	return nil
}

// MustRegister is Register that panics on error, for package-level setup
func (r *Registry) MustRegister(name string, def Definition) {
	if err := r.Register(name, def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under a qualified name
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[name]
	return def, ok
}

// Names returns all registered type names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShortName strips the namespace from a type name
func ShortName(typeName string) string {
	if i := strings.LastIndex(typeName, NamespaceSeparator); i >= 0 {
		return typeName[i+len(NamespaceSeparator):]
	}
	return typeName
}
