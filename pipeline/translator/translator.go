// Package translator renders protocol-agnostic execution intents into
// connector execution specs for one target environment.
//
// A translator is pure: same execution directive in, same spec shape out,
// no mutation of the input. The environment is picked once at startup from
// config; an unknown tag is a fatal configuration error, while a per-flow
// translation failure only fails that flow.
package translator

import (
	"fmt"
	"sort"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Environment tags one execution target.
type Environment string

const (
	// EnvSimulated executes against the in-process virtual fill engine.
	EnvSimulated Environment = "simulated"
	// EnvCentralized executes against a central limit order book venue.
	EnvCentralized Environment = "centralized"
	// EnvDecentralized executes against on-chain liquidity.
	EnvDecentralized Environment = "decentralized"
)

// Valid reports whether the tag names a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvSimulated, EnvCentralized, EnvDecentralized:
		return true
	}
	return false
}

// =============================================================================
// CONTRACT
// =============================================================================

// ConnectorSpec is one protocol-specific rendering of an execution intent.
type ConnectorSpec interface {
	Environment() Environment
	Validate() error
}

// Translator renders an execution directive for its environment. Translate
// must be deterministic in everything but the minted group identifier and
// must never mutate the directive.
type Translator interface {
	Environment() Environment
	Translate(directive *envelope.ExecutionDirective) (ConnectorSpec, *ExecutionGroup, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the configured translators keyed by environment tag.
type Registry struct {
	translators map[Environment]Translator
}

// NewRegistry creates a registry over the given translators.
func NewRegistry(translators ...Translator) (*Registry, error) {
	r := &Registry{translators: make(map[Environment]Translator, len(translators))}
	for _, tr := range translators {
		env := tr.Environment()
		if !env.Valid() {
			return nil, fmt.Errorf("translator with unknown environment tag %q", env)
		}
		if _, dup := r.translators[env]; dup {
			return nil, fmt.Errorf("duplicate translator for environment %q", env)
		}
		r.translators[env] = tr
	}
	return r, nil
}

// Lookup returns the translator for the environment tag. Callers treat an
// error here as fatal: it means the configuration names an environment
// nothing can serve.
func (r *Registry) Lookup(env Environment) (Translator, error) {
	tr, ok := r.translators[env]
	if !ok {
		return nil, fmt.Errorf("no translator registered for environment %q (have %v)", env, r.Environments())
	}
	return tr, nil
}

// Environments returns the sorted registered environment tags.
func (r *Registry) Environments() []string {
	envs := make([]string, 0, len(r.translators))
	for env := range r.translators {
		envs = append(envs, string(env))
	}
	sort.Strings(envs)
	return envs
}
