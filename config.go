package cimodel

import "strings"

// Config holds the collaborators a Factory injects into every record and
// collection it builds. Gateway and Registry are required; the rest default
// to no-op implementations and StrictEquality.
type Config struct {
	Gateway  Gateway
	Registry *Registry
	Cache    Cache
	Logger   Logger
	Metrics  Metrics

	// Namespace is prefixed to type names that carry no namespace of their own.
	Namespace string

	// Equality decides dirty detection and condition matching.
	Equality Equality
}

// Validate checks if the Config is valid
func (c Config) Validate() error {
	if c.Gateway == nil {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Gateway",
			"reason": "storage gateway is required",
		})
	}
	if c.Registry == nil {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Registry",
			"reason": "type registry is required",
		})
	}
	if strings.HasPrefix(c.Namespace, NamespaceSeparator) || strings.HasSuffix(c.Namespace, NamespaceSeparator) {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Namespace",
			"value":  c.Namespace,
			"reason": "namespace must not start or end with " + NamespaceSeparator,
		})
	}
	return nil
}

// withDefaults fills optional collaborators
func (c Config) withDefaults() Config {
	if c.Cache == nil {
		c.Cache = NoOpCache{}
	}
	if c.Logger == nil {
		c.Logger = &NoOpLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoOpMetrics{}
	}
	if c.Equality == nil {
		c.Equality = StrictEquality{}
	}
	return c
}
