package store

// Lifecycle hook names. Which ones a component fires depends on its version.
const (
	HookInit         = "init"
	HookBeforeCreate = "beforeCreate"
	HookCreated      = "created"
	HookDestroyed    = "destroyed"
	HookUnmounted    = "unmounted"
)

// Component is a store with a lifecycle.
type Component struct {
	store   *Store
	version int
	server  bool

	hooks map[string][]func()

	created   bool
	destroyed bool
}

type ComponentOption func(*Component)

// WithServer marks the component as rendered on the server.
func WithServer() ComponentOption {
	return func(c *Component) {
		c.server = true
	}
}

func NewComponent(name string, version int, opts ...ComponentOption) *Component {
	c := &Component{
		store:   New(name),
		version: version,
		hooks:   make(map[string][]func()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Component) Store() *Store { return c.store }

func (c *Component) Version() int { return c.version }

func (c *Component) Server() bool { return c.server }

func (c *Component) Created() bool { return c.created }

func (c *Component) Destroyed() bool { return c.destroyed }

// On registers fn for the named hook.
func (c *Component) On(hook string, fn func()) {
	c.hooks[hook] = append(c.hooks[hook], fn)
}

// Create fires the component's init hook then its created hook.
func (c *Component) Create() {
	if c.created {
		return
	}
	c.created = true

	switch c.version {
	case 1:
		c.emit(HookInit)
	default:
		c.emit(HookBeforeCreate)
	}
	c.emit(HookCreated)
}

// Destroy fires the component's destroy hook and stops its watchers.
func (c *Component) Destroy() {
	if !c.created || c.destroyed {
		return
	}
	c.destroyed = true

	switch c.version {
	case 1, 2:
		c.emit(HookDestroyed)
	default:
		c.emit(HookUnmounted)
	}
	c.store.Teardown()
}

func (c *Component) emit(hook string) {
	for _, fn := range c.hooks[hook] {
		fn()
	}
}
