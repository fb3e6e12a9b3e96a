// Package internal contains the core implementation packages for burrow.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the burrow CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - compiler: backend contract, option normalization and frontmatter
//   - markdown: the goldmark-based MDX backend producing the ir program
//   - ir: the serialized compiled-code format
//   - runtime: links compiled code against layered bindings and renders it
//   - sanitize: strips unsafe values from caller scope
//   - cache: LRU+TTL store of compiled artifacts
//   - gate: one-shot backend initialization shared by concurrent callers
//   - mdx: the service tying compilation, cache and evaluation together
//   - hydrate: renders compiled code with fallback on failure
//   - build: renders a content directory to a static site
//   - server, middleware, websocket: the HTTP front end and live reload
//   - watcher, validation, config, logging, errors, version: support
//
// # Data Flow
//
// Source text goes through the compiler backend once per cache key:
//
//   - mdx.Service.SerializeWithCache checks the cache and compiles on miss
//   - the compiled code and frontmatter are cached, the scope never is
//   - hydrate links the code against runtime bindings and the scope
//   - server and build wrap the hydrated content in a page
//   - watcher events evict stale pages and trigger browser reloads
//
// # Security Considerations
//
//   - Scope values are sanitized before they reach the runtime
//   - Compiled code is data interpreted by runtime, never executed
//   - Content paths and page names are validated against traversal
//   - Remote sources are restricted to configured hosts and size limits
//   - WebSocket and CORS access is limited to allowed origins
//
// For detailed documentation, see the individual package documentation.
package internal
