package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-version"
)

// ABIVersion is the plugin interface revision implemented by this host.
const ABIVersion = "1.0.0"

var (
	ErrNotFound     = errors.New("plugin not found")
	ErrIncompatible = errors.New("incompatible plugin")
	ErrDuplicate    = errors.New("plugin already registered")
)

type Kind int

const (
	KindEncoder Kind = iota
	KindDecoder
)

func (k Kind) String() string {
	if k == KindDecoder {
		return "decoder"
	}
	return "encoder"
}

type Descriptor struct {
	Name        string
	Description string
	Kind        Kind
	// Version is the ABI revision the plugin was written against.
	Version    string
	NewEncoder func(*Context) Encoder
	NewDecoder func(*Context) Decoder
}

type Registry struct {
	mu         sync.RWMutex
	entries    map[string]Descriptor
	constraint version.Constraints
}

func NewRegistry() *Registry {
	host := version.Must(version.NewVersion(ABIVersion))
	c, err := version.NewConstraint(fmt.Sprintf(">= 1.0, < %d.0", host.Segments()[0]+1))
	if err != nil {
		panic(err)
	}
	return &Registry{
		entries:    make(map[string]Descriptor),
		constraint: c,
	}
}

func key(k Kind, name string) string {
	return k.String() + "/" + name
}

func (r *Registry) check(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("unnamed %s: %w", d.Kind, ErrIncompatible)
	}
	v, err := version.NewVersion(d.Version)
	if err != nil {
		return fmt.Errorf("%s: bad version %q: %v: %w", d.Name, d.Version, err, ErrIncompatible)
	}
	if !r.constraint.Check(v) {
		return fmt.Errorf("%s: version %s does not satisfy %s: %w", d.Name, v, r.constraint, ErrIncompatible)
	}
	switch d.Kind {
	case KindEncoder:
		if d.NewEncoder == nil {
			return fmt.Errorf("%s: missing encoder factory: %w", d.Name, ErrIncompatible)
		}
	case KindDecoder:
		if d.NewDecoder == nil {
			return fmt.Errorf("%s: missing decoder factory: %w", d.Name, ErrIncompatible)
		}
	default:
		return fmt.Errorf("%s: unknown kind %d: %w", d.Name, d.Kind, ErrIncompatible)
	}
	return nil
}

func (r *Registry) Register(d Descriptor) error {
	if err := r.check(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(d.Kind, d.Name)
	if _, ok := r.entries[k]; ok {
		return fmt.Errorf("%s: %w", k, ErrDuplicate)
	}
	r.entries[k] = d
	return nil
}

func (r *Registry) lookup(k Kind, name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[key(k, name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%s %q: %w", k, name, ErrNotFound)
	}
	return d, nil
}

func (r *Registry) NewEncoder(name string, ctx *Context) (Encoder, error) {
	d, err := r.lookup(KindEncoder, name)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = NewContext(name)
	}
	e := d.NewEncoder(ctx)
	if e == nil {
		return nil, fmt.Errorf("%s: factory returned nil: %w", name, ErrIncompatible)
	}
	return e, nil
}

func (r *Registry) NewDecoder(name string, ctx *Context) (Decoder, error) {
	d, err := r.lookup(KindDecoder, name)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = NewContext(name)
	}
	dec := d.NewDecoder(ctx)
	if dec == nil {
		return nil, fmt.Errorf("%s: factory returned nil: %w", name, ErrIncompatible)
	}
	return dec, nil
}

// List returns the descriptors of one kind sorted by name.
func (r *Registry) List(k Kind) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, d := range r.entries {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
