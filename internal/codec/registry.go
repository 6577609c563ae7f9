package codec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/registry"

	"github.com/rickgao/ticker-relay/internal/errs"
)

// MemoryRegistryURL selects the in-process registry instead of an HTTP one.
const MemoryRegistryURL = "memory://"

// Registry maps a logical schema to a stable id and back.
type Registry interface {
	// Register stores schema under subject and returns its id. Registering the
	// same schema again returns the same id.
	Register(ctx context.Context, subject string, schema avro.Schema) (int, error)

	// Resolve returns the schema stored under id.
	Resolve(ctx context.Context, id int) (avro.Schema, error)
}

// RegistryConfig configures a schema registry client.
type RegistryConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// NewRegistry returns an HTTP registry client, or a MemoryRegistry when the URL
// is MemoryRegistryURL.
func NewRegistry(cfg RegistryConfig) (Registry, error) {
	if cfg.URL == MemoryRegistryURL {
		return NewMemoryRegistry(), nil
	}
	return NewHTTPRegistry(cfg)
}

// HTTPRegistry talks to a Confluent-compatible schema registry.
type HTTPRegistry struct {
	client *registry.Client
}

// NewHTTPRegistry creates a registry client.
func NewHTTPRegistry(cfg RegistryConfig) (*HTTPRegistry, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	opts := []registry.ClientFunc{
		registry.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.Username != "" {
		opts = append(opts, registry.WithBasicAuth(cfg.Username, cfg.Password))
	}

	client, err := registry.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create registry client: %w", err)
	}
	return &HTTPRegistry{client: client}, nil
}

// Register implements Registry.
func (r *HTTPRegistry) Register(ctx context.Context, subject string, schema avro.Schema) (int, error) {
	id, _, err := r.client.CreateSchema(ctx, subject, schema.String())
	if err != nil {
		return 0, classify(fmt.Errorf("create schema: %w", err))
	}
	return id, nil
}

// Resolve implements Registry.
func (r *HTTPRegistry) Resolve(ctx context.Context, id int) (avro.Schema, error) {
	schema, err := r.client.GetSchema(ctx, id)
	if err != nil {
		return nil, classify(fmt.Errorf("get schema %d: %w", id, err))
	}
	return schema, nil
}

// Subjects lists registered subjects. Used as a connectivity check.
func (r *HTTPRegistry) Subjects(ctx context.Context) ([]string, error) {
	subjects, err := r.client.GetSubjects(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("get subjects: %w", err))
	}
	return subjects, nil
}

// classify marks failures that say nothing about the schema itself as
// connection errors: transport failures, server errors, throttling and
// rejected credentials. Other registry status errors, such as 404 for an
// unknown id, are returned as-is.
func classify(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &errs.ConnectionError{Component: "registry", Err: err}
	}
	if status, ok := registryStatus(err); ok && transientStatus(status) {
		return &errs.ConnectionError{Component: "registry", Err: err}
	}
	return err
}

func registryStatus(err error) (int, bool) {
	var re registry.Error
	if errors.As(err, &re) {
		return re.StatusCode, true
	}
	var rp *registry.Error
	if errors.As(err, &rp) && rp != nil {
		return rp.StatusCode, true
	}
	return 0, false
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError
}

// MemoryRegistry is an in-process Registry. Ids start at 1 and are stable for
// the lifetime of the registry.
type MemoryRegistry struct {
	mu       sync.Mutex
	nextID   int
	byID     map[int]avro.Schema
	byPrint  map[[32]byte]int
	subjects map[string][]int
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		nextID:   1,
		byID:     make(map[int]avro.Schema),
		byPrint:  make(map[[32]byte]int),
		subjects: make(map[string][]int),
	}
}

// Register implements Registry.
func (r *MemoryRegistry) Register(_ context.Context, subject string, schema avro.Schema) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp := schema.Fingerprint()
	id, ok := r.byPrint[fp]
	if !ok {
		id = r.nextID
		r.nextID++
		r.byID[id] = schema
		r.byPrint[fp] = id
	}
	for _, existing := range r.subjects[subject] {
		if existing == id {
			return id, nil
		}
	}
	r.subjects[subject] = append(r.subjects[subject], id)
	return id, nil
}

// Resolve implements Registry.
func (r *MemoryRegistry) Resolve(_ context.Context, id int) (avro.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("schema %d not found", id)
	}
	return schema, nil
}

// Subjects lists registered subjects.
func (r *MemoryRegistry) Subjects(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.subjects))
	for s := range r.subjects {
		out = append(out, s)
	}
	return out, nil
}
