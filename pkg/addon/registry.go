package addon

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// Provider binds a short name and a stable integer identifier to an addon
// implementation. The number is what persisted references store, so the
// name table may be reorganized without rewriting data.
type Provider struct {
	// Name is the short upper-case key, e.g. "BOX".
	Name string

	// Number is the stable integer identifier used in persisted references.
	Number int

	// Interface is the operation table this provider implements against.
	Interface *Interface

	// New constructs a fresh implementation instance per invocation.
	New Constructor

	// Prototype is a zero-value instance used only for structural probing
	// of implemented operations.
	Prototype any
}

// ImplementedOperations returns the operations the provider's implementation
// actually provides.
func (p *Provider) ImplementedOperations() []OperationDeclaration {
	return p.Interface.ImplementedOperations(p.Prototype)
}

// AuthorizedOperations intersects the implemented operations with those
// permitted by the given capability set.
func (p *Provider) AuthorizedOperations(caps Capabilities) []OperationDeclaration {
	var ops []OperationDeclaration
	for _, op := range p.ImplementedOperations() {
		if caps.Contains(op.Capability) {
			ops = append(ops, op)
		}
	}
	return ops
}

// FullOperationName renders the wire name of one of the provider's
// operations, e.g. "BOX:list_root_items".
func (p *Provider) FullOperationName(op *OperationDeclaration) string {
	return p.Name + ":" + op.Name
}

// Registry maps provider names and numbers to their implementations.
// Safe for concurrent use; registration happens at startup, lookups on
// every invocation.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Provider
	byNumber map[int]*Provider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]*Provider),
		byNumber: make(map[int]*Provider),
	}
}

// Register adds a provider. Re-registering the same name with the same
// number and implementation type is a no-op; any other collision on name or
// number is an error, since persisted references depend on both staying
// stable.
func (r *Registry) Register(p Provider) error {
	if p.Name == "" || p.Number <= 0 || p.Interface == nil || p.New == nil || p.Prototype == nil {
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"incomplete provider registration %q", p.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[p.Name]; ok {
		if existing.Number == p.Number && fmt.Sprintf("%T", existing.Prototype) == fmt.Sprintf("%T", p.Prototype) {
			return nil
		}
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"provider %q already registered with number %d", p.Name, existing.Number)
	}
	if existing, ok := r.byNumber[p.Number]; ok {
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"provider number %d already registered to %q", p.Number, existing.Name)
	}

	registered := p
	r.byName[p.Name] = &registered
	r.byNumber[p.Number] = &registered
	return nil
}

// MustRegister registers a provider and panics on collision. Used by the
// static provider tables, where a collision is a programming error.
func (r *Registry) MustRegister(p Provider) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Lookup resolves a provider by its short name.
func (r *Registry) Lookup(name string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, gverrors.Newf(gverrors.KindNotFound, "unknown provider %q", name)
}

// LookupNumber resolves a provider by its stable integer identifier.
func (r *Registry) LookupNumber(number int) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byNumber[number]; ok {
		return p, nil
	}
	return nil, gverrors.Newf(gverrors.KindNotFound, "unknown provider number %d", number)
}

// Names lists the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveOperation splits a full operation name like "BOX:list_root_items"
// into its provider and operation declaration.
func (r *Registry) ResolveOperation(fullName string) (*Provider, *OperationDeclaration, error) {
	providerName, opName, ok := strings.Cut(fullName, ":")
	if !ok {
		return nil, nil, gverrors.Newf(gverrors.KindInvalidArguments,
			"malformed operation name %q, want \"<PROVIDER>:<operation>\"", fullName)
	}
	provider, err := r.Lookup(providerName)
	if err != nil {
		return nil, nil, err
	}
	op, err := provider.Interface.Operation(opName)
	if err != nil {
		return nil, nil, err
	}
	return provider, op, nil
}
