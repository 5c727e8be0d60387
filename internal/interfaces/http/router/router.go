package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration under /api/<version>
type Router struct {
	engine        *gin.Engine
	apiVersion    string
	apiMiddleware []gin.HandlerFunc
	registrars    []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithAPIMiddleware adds middleware to the versioned API group only
func WithAPIMiddleware(middleware ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.apiMiddleware = append(r.apiMiddleware, middleware...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.apiMiddleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one bounded context
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// Handle registers a route for the given method
func (dg *DomainGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodGet, path, handlers...)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPost, path, handlers...)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPut, path, handlers...)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodDelete, path, handlers...)
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}
