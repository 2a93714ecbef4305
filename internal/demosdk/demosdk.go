// Package demosdk is a small in-memory cloud SDK registered with a
// reflection registry. It backs the CLI demo and end-to-end tests.
package demosdk

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/sdkbridge/pkg/reflection"
)

// System is the system id the SDK registers under
const System = "cloudkit"

// Bucket is a storage bucket
type Bucket struct {
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int    `json:"size"`
}

// Event is a bucket notification
type Event struct {
	Bucket string `json:"bucket"`
	Kind   string `json:"kind"`
}

// Operation tracks a long-running compute action
type Operation struct {
	ID     string `json:"id"`
	Target string `json:"target"`
	Done   bool   `json:"done"`
}

// Token is an issued session token
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrExists       = errors.New("already exists")
)

// backend is shared by every client of one registry
type backend struct {
	mu        sync.Mutex
	buckets   map[string]Bucket
	objects   map[string]map[string][]byte
	instances map[string]string
	ops       int
}

func newBackend() *backend {
	return &backend{
		buckets:   make(map[string]Bucket),
		objects:   make(map[string]map[string][]byte),
		instances: map[string]string{"i-001": "running", "i-002": "stopped"},
	}
}

// BucketClient manages buckets and objects
type BucketClient struct {
	b      *backend
	token  string
	region string
}

func (c *BucketClient) ListBuckets(ctx context.Context, prefix string, limit int) ([]Bucket, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	names := make([]string, 0, len(c.b.buckets))
	for name := range c.b.buckets {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]Bucket, len(names))
	for i, n := range names {
		out[i] = c.b.buckets[n]
	}
	return out, nil
}

func (c *BucketClient) CreateBucket(ctx context.Context, name, region string) (Bucket, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if _, ok := c.b.buckets[name]; ok {
		return Bucket{}, fmt.Errorf("bucket %s: %w", name, ErrExists)
	}
	if region == "" {
		region = c.region
	}
	b := Bucket{Name: name, Region: region, CreatedAt: time.Now().UTC()}
	c.b.buckets[name] = b
	c.b.objects[name] = make(map[string][]byte)
	return b, nil
}

func (c *BucketClient) DeleteBucket(ctx context.Context, name string) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if _, ok := c.b.buckets[name]; !ok {
		return fmt.Errorf("bucket %s: %w", name, ErrNotFound)
	}
	delete(c.b.buckets, name)
	delete(c.b.objects, name)
	return nil
}

func (c *BucketClient) PutObject(bucket, key string, body []byte) (ObjectInfo, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	objs, ok := c.b.objects[bucket]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("bucket %s: %w", bucket, ErrNotFound)
	}
	objs[key] = append([]byte(nil), body...)
	return ObjectInfo{Bucket: bucket, Key: key, Size: len(body)}, nil
}

func (c *BucketClient) GetObject(bucket, key string) ([]byte, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	body, ok := c.b.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, ErrNotFound)
	}
	return body, nil
}

// ListObjects yields objects in key order
func (c *BucketClient) ListObjects(bucket string) iter.Seq[ObjectInfo] {
	c.b.mu.Lock()
	objs := c.b.objects[bucket]
	keys := make([]string, 0, len(objs))
	sizes := make(map[string]int, len(objs))
	for k, v := range objs {
		keys = append(keys, k)
		sizes[k] = len(v)
	}
	c.b.mu.Unlock()
	sort.Strings(keys)

	return func(yield func(ObjectInfo) bool) {
		for _, k := range keys {
			if !yield(ObjectInfo{Bucket: bucket, Key: k, Size: sizes[k]}) {
				return
			}
		}
	}
}

// Watch delivers the next event for a bucket
func (c *BucketClient) Watch(ctx context.Context, bucket string) <-chan Event {
	ch := make(chan Event, 1)
	ch <- Event{Bucket: bucket, Kind: "heartbeat"}
	close(ch)
	return ch
}

func (c *BucketClient) Sign(payload string) string {
	return fmt.Sprintf("%s.%d", payload, len(c.token))
}

func (c *BucketClient) String() string {
	return "BucketClient(" + c.region + ")"
}

// NewBucketClient requires a token
func newBucketClient(b *backend) func(token, region string) (*BucketClient, error) {
	return func(token, region string) (*BucketClient, error) {
		if token == "" {
			return nil, fmt.Errorf("bucket client: %w: token required", ErrUnauthorized)
		}
		return &BucketClient{b: b, token: token, region: region}, nil
	}
}

// Session handles authentication
type Session struct {
	user string
}

func (s *Session) Login(user, password string) (Token, error) {
	if user == "" || password == "" {
		return Token{}, ErrUnauthorized
	}
	s.user = user
	return Token{Value: "tok-" + user, ExpiresAt: time.Now().Add(time.Hour).UTC()}, nil
}

func (s *Session) Logout() bool {
	was := s.user != ""
	s.user = ""
	return was
}

func (s *Session) RefreshToken() (Token, error) {
	if s.user == "" {
		return Token{}, ErrUnauthorized
	}
	return Token{Value: "tok-" + s.user + "-r", ExpiresAt: time.Now().Add(time.Hour).UTC()}, nil
}

// InstancesClient manages compute instances
type InstancesClient struct {
	b *backend
}

func (c *InstancesClient) ListInstances() map[string]string {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	out := make(map[string]string, len(c.b.instances))
	for k, v := range c.b.instances {
		out[k] = v
	}
	return out
}

func (c *InstancesClient) StartInstance(id string) (*Operation, error) {
	return c.transition(id, "running")
}

func (c *InstancesClient) StopInstance(id string) (*Operation, error) {
	return c.transition(id, "stopped")
}

func (c *InstancesClient) transition(id, state string) (*Operation, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if _, ok := c.b.instances[id]; !ok {
		return nil, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	c.b.instances[id] = state
	c.b.ops++
	return &Operation{ID: fmt.Sprintf("op-%03d", c.b.ops), Target: id, Done: true}, nil
}

// metricsCollector is internal bookkeeping and never exposed as tools
type metricsCollector struct{}

func (m *metricsCollector) Snapshot() map[string]int { return map[string]int{} }

// Register installs the SDK under the cloudkit namespace
func Register(reg *reflection.Registry) {
	b := newBackend()

	root := reg.Namespace(System)
	root.Func("Version", func() string { return "1.4.0" }, reflection.Doc("Returns the SDK version."))
	root.Func("Ping", func(ctx context.Context) string { return "pong" }, reflection.Doc("Checks connectivity.\nGET /ping"))

	impl := reg.Namespace(System + ".storage._client")
	impl.Type("BucketClient", &BucketClient{},
		reflection.Constructor(newBucketClient(b),
			reflection.Params("token", "region"),
			reflection.Defaults(map[string]any{"region": "us-east-1"}),
		),
		reflection.TypeDoc("Client for bucket storage."),
		reflection.Method("ListBuckets",
			reflection.Params("prefix", "limit"),
			reflection.Defaults(map[string]any{"prefix": "", "limit": 0}),
			reflection.Doc("List buckets visible to the caller.\nGET /buckets"),
		),
		reflection.Method("CreateBucket",
			reflection.Params("name", "region"),
			reflection.Defaults(map[string]any{"region": ""}),
			reflection.Doc("Create a bucket.\nPOST /buckets"),
		),
		reflection.Method("DeleteBucket",
			reflection.Params("name"),
			reflection.Doc("Delete an empty bucket. Use with caution.\nDELETE /buckets/{name}"),
		),
		reflection.Method("PutObject",
			reflection.Params("bucket", "key", "body"),
			reflection.Doc("Upload an object.\nPUT /buckets/{bucket}/{key}"),
		),
		reflection.Method("GetObject",
			reflection.Params("bucket", "key"),
			reflection.Doc("Download an object.\nGET /buckets/{bucket}/{key}"),
		),
		reflection.Method("ListObjects",
			reflection.Params("bucket"),
			reflection.Returns("iter.Seq[ObjectInfo]"),
			reflection.Doc("Paginated iterator over the objects of a bucket."),
		),
		reflection.Method("Watch",
			reflection.Params("bucket"),
			reflection.Doc("Wait for the next bucket event."),
		),
		reflection.MethodAs("_sign", "Sign", reflection.Params("payload")),
	)
	reg.Namespace(System+".storage").Alias("BucketClient", System+".storage._client.BucketClient")

	reg.Namespace(System+".auth").Type("Session", &Session{},
		reflection.Method("Login", reflection.Params("user", "password"), reflection.Doc("Start a session and issue a token.")),
		reflection.Method("Logout", reflection.Doc("End the session.")),
		reflection.Method("RefreshToken", reflection.Doc("Refresh the session token.")),
	)

	reg.Namespace(System+".compute").Type("InstancesClient", &InstancesClient{},
		reflection.Constructor(func() *InstancesClient { return &InstancesClient{b: b} }),
		reflection.Method("ListInstances", reflection.Doc("List instances and their states.")),
		reflection.Method("StartInstance",
			reflection.Params("id"),
			reflection.Returns("*Operation"),
			reflection.Doc("Start an instance. Long-running."),
		),
		reflection.Method("StopInstance",
			reflection.Params("id"),
			reflection.Returns("*Operation"),
			reflection.Doc("Stop an instance."),
		),
	)

	reg.Namespace(System+".internal").Type("Metrics", &metricsCollector{})
}

// NewRegistry returns a registry with the SDK installed
func NewRegistry() *reflection.Registry {
	reg := reflection.NewRegistry()
	Register(reg)
	return reg
}
