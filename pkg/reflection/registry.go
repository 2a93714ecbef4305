package reflection

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Option configures a registered function or method
type Option func(*callSpec)

type callSpec struct {
	names    []string
	defaults map[string]any
	doc      string
	returns  string
	async    bool
}

// Params names the parameters in declaration order. A leading
// context.Context parameter is not counted.
func Params(names ...string) Option {
	return func(s *callSpec) { s.names = names }
}

// Defaults marks parameters as optional with the given default values
func Defaults(defaults map[string]any) Option {
	return func(s *callSpec) { s.defaults = defaults }
}

// Doc sets documentation text
func Doc(text string) Option {
	return func(s *callSpec) { s.doc = text }
}

// Returns overrides the return descriptor
func Returns(desc string) Option {
	return func(s *callSpec) { s.returns = desc }
}

// Async marks a callable as asynchronous even when it does not return a channel
func Async() Option {
	return func(s *callSpec) { s.async = true }
}

// TypeOption configures a registered type
type TypeOption func(*typeEntry)

// Method attaches metadata to an exported method
func Method(name string, opts ...Option) TypeOption {
	return MethodAs(name, name, opts...)
}

// MethodAs exposes the Go method goName under a different member name
func MethodAs(exposed, goName string, opts ...Option) TypeOption {
	return func(t *typeEntry) {
		t.methods = append(t.methods, &methodEntry{exposed: exposed, goName: goName, spec: buildSpec(opts)})
	}
}

// Static attaches a function that needs no owner instance
func Static(name string, fn any, opts ...Option) TypeOption {
	return func(t *typeEntry) {
		t.statics = append(t.statics, newFuncEntry(name, fn, opts))
	}
}

// Constructor sets the function used to build owner instances
func Constructor(fn any, opts ...Option) TypeOption {
	return func(t *typeEntry) {
		t.ctor = newFuncEntry("New"+t.name, fn, opts)
	}
}

// TypeDoc sets documentation for the type
func TypeDoc(text string) TypeOption {
	return func(t *typeEntry) { t.doc = text }
}

// Hide removes exported methods from enumeration
func Hide(names ...string) TypeOption {
	return func(t *typeEntry) {
		for _, n := range names {
			t.hidden[n] = true
		}
	}
}

// Only restricts enumeration to methods configured with Method or MethodAs
func Only() TypeOption {
	return func(t *typeEntry) { t.only = true }
}

func buildSpec(opts []Option) callSpec {
	var s callSpec
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type funcEntry struct {
	name string
	fn   reflect.Value
	spec callSpec
	sig  *Signature
	meta callMeta
}

func newFuncEntry(name string, fn any, opts []Option) *funcEntry {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("reflection: %s is %T, not a function", name, fn))
	}
	spec := buildSpec(opts)
	sig, meta := buildSignature(v.Type(), 0, spec)
	return &funcEntry{name: name, fn: v, spec: spec, sig: sig, meta: meta}
}

type methodEntry struct {
	exposed string
	goName  string
	spec    callSpec
}

type typeEntry struct {
	name    string
	path    string
	origin  *Namespace
	ptr     reflect.Type
	methods []*methodEntry
	statics []*funcEntry
	ctor    *funcEntry
	doc     string
	hidden  map[string]bool
	only    bool
}

func (t *typeEntry) id() string {
	return "type:" + t.path
}

type node struct {
	name  string
	kind  Kind
	ns    *Namespace
	typ   *typeEntry
	fn    *funcEntry
	value reflect.Value
}

// Namespace is a named scope holding functions, types, instances and
// nested namespaces
type Namespace struct {
	reg      *Registry
	path     string
	children []*node
	index    map[string]*node
}

// Path returns the qualified name of the namespace
func (ns *Namespace) Path() string {
	return ns.path
}

// Registry is a Provider backed by explicit registration and Go reflection
type Registry struct {
	mu     sync.RWMutex
	roots  map[string]*Namespace
	byType map[reflect.Type]*typeEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		roots:  make(map[string]*Namespace),
		byType: make(map[reflect.Type]*typeEntry),
	}
}

// Namespace returns the namespace at a dotted path, creating it and any
// missing parents
func (r *Registry) Namespace(path string) *Namespace {
	r.mu.Lock()
	defer r.mu.Unlock()

	segments := strings.Split(path, ".")
	ns, ok := r.roots[segments[0]]
	if !ok {
		ns = r.newNamespace(segments[0])
		r.roots[segments[0]] = ns
	}
	for _, seg := range segments[1:] {
		child, ok := ns.index[seg]
		if ok && child.kind == KindNamespace {
			ns = child.ns
			continue
		}
		next := r.newNamespace(ns.path + "." + seg)
		ns.add(&node{name: seg, kind: KindNamespace, ns: next})
		ns = next
	}
	return ns
}

func (r *Registry) newNamespace(path string) *Namespace {
	return &Namespace{reg: r, path: path, index: make(map[string]*node)}
}

func (ns *Namespace) add(n *node) {
	if _, exists := ns.index[n.name]; exists {
		panic(fmt.Sprintf("reflection: %s.%s already registered", ns.path, n.name))
	}
	ns.children = append(ns.children, n)
	ns.index[n.name] = n
}

// Func registers a free function
func (ns *Namespace) Func(name string, fn any, opts ...Option) *Namespace {
	ns.reg.mu.Lock()
	defer ns.reg.mu.Unlock()
	ns.add(&node{name: name, kind: KindFunc, fn: newFuncEntry(name, fn, opts)})
	return ns
}

// Type registers a type. sample is a value or pointer of the type; methods
// are enumerated from its pointer method set.
func (ns *Namespace) Type(name string, sample any, opts ...TypeOption) *Namespace {
	ns.reg.mu.Lock()
	defer ns.reg.mu.Unlock()

	t := reflect.TypeOf(sample)
	if t == nil {
		panic(fmt.Sprintf("reflection: nil sample for type %s", name))
	}
	if t.Kind() != reflect.Pointer {
		t = reflect.PointerTo(t)
	}

	entry := &typeEntry{
		name:   name,
		path:   ns.path + "." + name,
		origin: ns,
		ptr:    t,
		hidden: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(entry)
	}
	ns.add(&node{name: name, kind: KindType, typ: entry})
	ns.reg.byType[t] = entry
	return ns
}

// Instance registers a value whose methods are callable without construction
func (ns *Namespace) Instance(name string, value any) *Namespace {
	ns.reg.mu.Lock()
	defer ns.reg.mu.Unlock()
	ns.add(&node{name: name, kind: KindInstance, value: reflect.ValueOf(value)})
	return ns
}

// Value registers a plain attribute
func (ns *Namespace) Value(name string, value any) *Namespace {
	ns.reg.mu.Lock()
	defer ns.reg.mu.Unlock()
	ns.add(&node{name: name, kind: KindValue, value: reflect.ValueOf(value)})
	return ns
}

// Link exposes another namespace under a local name
func (ns *Namespace) Link(name string, target *Namespace) *Namespace {
	ns.reg.mu.Lock()
	defer ns.reg.mu.Unlock()
	ns.add(&node{name: name, kind: KindNamespace, ns: target})
	return ns
}

// Alias re-exports a type registered elsewhere under a local name
func (ns *Namespace) Alias(name, typePath string) *Namespace {
	n, err := ns.reg.lookup(typePath)
	if err != nil || n.kind != KindType {
		panic(fmt.Sprintf("reflection: alias target %s is not a registered type", typePath))
	}
	ns.reg.mu.Lock()
	defer ns.reg.mu.Unlock()
	ns.add(&node{name: name, kind: KindType, typ: n.typ})
	return ns
}

// lookup walks a dotted path segment by segment so linked namespaces and
// aliases resolve like their targets
func (r *Registry) lookup(path string) (*node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	segments := strings.Split(path, ".")
	root, ok := r.roots[segments[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	cur := &node{name: segments[0], kind: KindNamespace, ns: root}
	for _, seg := range segments[1:] {
		if cur.kind != KindNamespace {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		next, ok := cur.ns.index[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		cur = next
	}
	return cur, nil
}

func splitRef(ref string) (string, string) {
	i := strings.LastIndex(ref, ".")
	if i < 0 {
		return "", ref
	}
	return ref[:i], ref[i+1:]
}

// Load implements Provider
func (r *Registry) Load(ctx context.Context, root string) (Member, error) {
	n, err := r.lookup(root)
	if err != nil {
		return Member{}, err
	}
	if n.kind != KindNamespace {
		return Member{}, fmt.Errorf("%w: %s is a %s", ErrNotFound, root, n.kind)
	}
	return Member{
		Name:   n.name,
		Path:   root,
		Kind:   KindNamespace,
		Origin: n.ns.path,
		ID:     "ns:" + n.ns.path,
	}, nil
}

// Members implements Provider
func (r *Registry) Members(ctx context.Context, path string) ([]Member, error) {
	n, err := r.lookup(path)
	if err != nil {
		return nil, err
	}

	switch n.kind {
	case KindNamespace:
		return r.namespaceMembers(path, n.ns), nil
	case KindType:
		return r.typeMembers(path, n.typ), nil
	case KindInstance:
		return r.instanceMembers(path, n.value), nil
	default:
		return nil, nil
	}
}

func (r *Registry) namespaceMembers(path string, ns *Namespace) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(ns.children))
	for _, child := range ns.children {
		m := Member{
			Name: child.name,
			Path: path + "." + child.name,
			Kind: child.kind,
		}
		switch child.kind {
		case KindNamespace:
			m.Origin = child.ns.path
			m.ID = "ns:" + child.ns.path
		case KindType:
			m.Origin = child.typ.origin.path
			m.ID = child.typ.id()
			m.Doc = child.typ.doc
			m.Methods = countPublic(r.typeMethodNames(child.typ))
		case KindFunc:
			m.Origin = ns.path
			m.ID = "func:" + ns.path + "." + child.name
			m.Signature = child.fn.sig
			m.Doc = child.fn.spec.doc
		case KindInstance:
			m.Origin = ns.path
			m.ID = "value:" + ns.path + "." + child.name
			if entry, ok := r.byType[child.value.Type()]; ok {
				m.Origin = entry.origin.path
				m.Methods = countPublic(r.typeMethodNames(entry))
			} else {
				m.Methods = child.value.Type().NumMethod()
			}
		case KindValue:
			m.Origin = ns.path
			m.ID = "value:" + ns.path + "." + child.name
		}
		members = append(members, m)
	}
	return members
}

func countPublic(names []string) int {
	n := 0
	for _, name := range names {
		if !strings.HasPrefix(name, "_") {
			n++
		}
	}
	return n
}

// typeMethodNames lists exposed method names: configured ones first, then
// the remaining exported methods in reflect order
func (r *Registry) typeMethodNames(t *typeEntry) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range t.methods {
		names = append(names, m.exposed)
		seen[m.goName] = true
	}
	if t.only {
		return names
	}
	for i := 0; i < t.ptr.NumMethod(); i++ {
		name := t.ptr.Method(i).Name
		if seen[name] || t.hidden[name] {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (t *typeEntry) method(exposed string) (string, callSpec, bool) {
	for _, m := range t.methods {
		if m.exposed == exposed {
			return m.goName, m.spec, true
		}
	}
	if t.only || t.hidden[exposed] {
		return "", callSpec{}, false
	}
	if _, ok := t.ptr.MethodByName(exposed); ok {
		return exposed, callSpec{}, true
	}
	return "", callSpec{}, false
}

func (r *Registry) typeMembers(path string, t *typeEntry) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []Member
	for _, name := range r.typeMethodNames(t) {
		goName, spec, ok := t.method(name)
		if !ok {
			continue
		}
		rm, ok := t.ptr.MethodByName(goName)
		if !ok {
			continue
		}
		sig, _ := buildSignature(rm.Type, 1, spec)
		members = append(members, Member{
			Name:      name,
			Path:      path + "." + name,
			Kind:      KindMethod,
			Origin:    t.origin.path,
			ID:        t.id() + "." + name,
			OwnerPath: path,
			OwnerID:   t.id(),
			Signature: sig,
			Doc:       spec.doc,
		})
	}
	for _, s := range t.statics {
		members = append(members, Member{
			Name:      s.name,
			Path:      path + "." + s.name,
			Kind:      KindMethod,
			Origin:    t.origin.path,
			ID:        t.id() + "." + s.name,
			OwnerPath: path,
			OwnerID:   t.id(),
			Signature: s.sig,
			Doc:       s.spec.doc,
			Static:    true,
		})
	}
	return members
}

func (r *Registry) instanceMembers(path string, v reflect.Value) []Member {
	r.mu.RLock()
	entry, registered := r.byType[v.Type()]
	r.mu.RUnlock()

	ownerID := "value:" + path
	if registered {
		members := r.typeMembers(path, entry)
		for i := range members {
			members[i].OwnerID = ownerID
			members[i].ID = ownerID + "." + members[i].Name
			members[i].Static = true
		}
		return members
	}

	t := v.Type()
	names := make([]string, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		names = append(names, t.Method(i).Name)
	}
	sort.Strings(names)

	members := make([]Member, 0, len(names))
	for _, name := range names {
		rm, _ := t.MethodByName(name)
		sig, _ := buildSignature(rm.Type, 1, callSpec{})
		members = append(members, Member{
			Name:      name,
			Path:      path + "." + name,
			Kind:      KindMethod,
			Origin:    path[:strings.LastIndex(path, ".")],
			ID:        ownerID + "." + name,
			OwnerPath: path,
			OwnerID:   ownerID,
			Signature: sig,
			Static:    true,
		})
	}
	return members
}

// handle is the Registry's Callable.Handle payload
type handle struct {
	fn     reflect.Value
	goName string
	meta   callMeta
}

// Resolve implements Provider
func (r *Registry) Resolve(ctx context.Context, ref string) (*Callable, error) {
	parentPath, name := splitRef(ref)
	if parentPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	parent, err := r.lookup(parentPath)
	if err != nil {
		return nil, err
	}

	switch parent.kind {
	case KindNamespace:
		n, err := r.lookup(ref)
		if err != nil {
			return nil, err
		}
		if n.kind != KindFunc {
			return nil, fmt.Errorf("%w: %s is a %s", ErrNotCallable, ref, n.kind)
		}
		return &Callable{
			Ref:       ref,
			Name:      name,
			Signature: n.fn.sig,
			Static:    true,
			Handle:    &handle{fn: n.fn.fn, meta: n.fn.meta},
		}, nil

	case KindType:
		t := parent.typ
		for _, s := range t.statics {
			if s.name == name {
				return &Callable{
					Ref:       ref,
					Name:      name,
					OwnerPath: parentPath,
					OwnerID:   t.id(),
					Signature: s.sig,
					Static:    true,
					Handle:    &handle{fn: s.fn, meta: s.meta},
				}, nil
			}
		}
		goName, spec, ok := t.method(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		rm, ok := t.ptr.MethodByName(goName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		sig, meta := buildSignature(rm.Type, 1, spec)
		return &Callable{
			Ref:           ref,
			Name:          name,
			OwnerPath:     parentPath,
			OwnerID:       t.id(),
			Signature:     sig,
			NeedsInstance: true,
			Handle:        &handle{goName: goName, meta: meta},
		}, nil

	case KindInstance:
		v := parent.value
		goName, spec := name, callSpec{}
		r.mu.RLock()
		entry, registered := r.byType[v.Type()]
		r.mu.RUnlock()
		if registered {
			var ok bool
			goName, spec, ok = entry.method(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
			}
		}
		rm, ok := v.Type().MethodByName(goName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		sig, meta := buildSignature(rm.Type, 1, spec)
		return &Callable{
			Ref:       ref,
			Name:      name,
			OwnerPath: parentPath,
			OwnerID:   "value:" + parentPath,
			Signature: sig,
			Static:    true,
			Handle:    &handle{fn: v.MethodByName(goName), meta: meta},
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotCallable, ref)
}

// Invoke implements Provider
func (r *Registry) Invoke(ctx context.Context, c *Callable, recv any, args Args) ([]any, error) {
	h, ok := c.Handle.(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: %s was not resolved by this registry", ErrNotCallable, c.Ref)
	}

	fn := h.fn
	if c.NeedsInstance {
		if recv == nil {
			return nil, fmt.Errorf("%w: %s needs an instance", ErrInvalidArgs, c.Ref)
		}
		fn = reflect.ValueOf(recv).MethodByName(h.goName)
		if !fn.IsValid() {
			return nil, fmt.Errorf("%w: %T has no method %s", ErrNotCallable, recv, h.goName)
		}
	}

	in, err := bindArgs(ctx, c.Signature, h.meta, args)
	if err != nil {
		return nil, err
	}
	return call(fn, in, h.meta)
}

// Constructor implements Provider
func (r *Registry) Constructor(ctx context.Context, ownerPath string) (*Signature, error) {
	n, err := r.lookup(ownerPath)
	if err != nil {
		return nil, err
	}
	if n.kind != KindType {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotConstructed, ownerPath, n.kind)
	}
	if n.typ.ctor == nil {
		return &Signature{}, nil
	}
	return n.typ.ctor.sig, nil
}

// Construct implements Provider
func (r *Registry) Construct(ctx context.Context, ownerPath string, args []any) (any, error) {
	n, err := r.lookup(ownerPath)
	if err != nil {
		return nil, err
	}
	if n.kind != KindType {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotConstructed, ownerPath, n.kind)
	}

	t := n.typ
	if t.ctor == nil {
		if len(args) > 0 {
			return nil, fmt.Errorf("%w: %s takes no arguments", ErrInvalidArgs, ownerPath)
		}
		return reflect.New(t.ptr.Elem()).Interface(), nil
	}

	named := make(map[string]any, len(args))
	for i, p := range t.ctor.sig.Params {
		if i < len(args) && args[i] != nil {
			named[p.Name] = args[i]
		}
	}
	in, err := bindArgs(ctx, t.ctor.sig, t.ctor.meta, Args{Named: named})
	if err != nil {
		return nil, err
	}
	out, err := call(t.ctor.fn, in, t.ctor.meta)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0] == nil {
		return nil, fmt.Errorf("%w: constructor for %s returned nothing", ErrNotConstructed, ownerPath)
	}
	return out[0], nil
}

var _ Provider = (*Registry)(nil)
