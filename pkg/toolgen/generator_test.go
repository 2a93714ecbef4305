package toolgen

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/sdkbridge/pkg/discovery"
	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
)

func testRules() *rules.RuleSet {
	return rules.Defaults().WithSystem("acme")
}

func TestParamSchema_UntypedBoolDefault(t *testing.T) {
	p := reflection.Param{Name: "active", Default: true, HasDefault: true}

	prop, required := ParamSchema(p, testRules())
	assert.Equal(t, map[string]any{"type": "boolean", "default": true}, prop)
	assert.False(t, required)
}

func TestParamSchema_Descriptors(t *testing.T) {
	rs := testRules()
	tests := []struct {
		name     string
		param    reflection.Param
		wantType string
		required bool
	}{
		{"plain string", reflection.Param{Name: "bucket", Type: "str"}, "string", true},
		{"optional int", reflection.Param{Name: "limit", Type: "Optional[int]", HasDefault: true}, "integer", false},
		{"union first", reflection.Param{Name: "size", Type: "Union[float, str]"}, "number", true},
		{"pointer", reflection.Param{Name: "flag", Type: "*bool"}, "boolean", true},
		{"go slice", reflection.Param{Name: "ids", Type: "[]string"}, "array", true},
		{"python dict", reflection.Param{Name: "meta", Type: "Dict[str, Any]"}, "object", true},
		{"bytes as text", reflection.Param{Name: "body", Type: "[]uint8"}, "string", true},
		{"unknown", reflection.Param{Name: "thing", Type: "SomeClass"}, "string", true},
		{"numeric text default", reflection.Param{Name: "retries", Default: "3", HasDefault: true}, "integer", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prop, required := ParamSchema(tt.param, rs)
			assert.Equal(t, tt.wantType, prop["type"])
			assert.Equal(t, tt.required, required)
		})
	}
}

func TestParamSchema_Collectors(t *testing.T) {
	rs := testRules()

	kw, required := ParamSchema(reflection.Param{Name: "opts", Kind: reflection.VariadicKeyword}, rs)
	assert.False(t, required)
	assert.Equal(t, "object", kw["type"])
	assert.Equal(t, true, kw["additionalProperties"])

	rest, required := ParamSchema(reflection.Param{Name: "tags", Kind: reflection.VariadicPositional}, rs)
	assert.False(t, required)
	assert.Equal(t, "array", rest["type"])
	assert.Equal(t, map[string]any{"type": "string"}, rest["items"])
}

func TestParamSchema_SentinelDefault(t *testing.T) {
	p := reflection.Param{Name: "region", Type: "str", Default: "NotSet", HasDefault: true}

	prop, required := ParamSchema(p, testRules())
	assert.False(t, required)
	assert.NotContains(t, prop, "default")
}

func TestParamSchema_NameHints(t *testing.T) {
	rs := testRules()

	url, _ := ParamSchema(reflection.Param{Name: "url"}, rs)
	assert.Equal(t, "string", url["type"])
	assert.Equal(t, "uri", url["format"])

	headers, _ := ParamSchema(reflection.Param{Name: "headers"}, rs)
	assert.Equal(t, "object", headers["type"])
	assert.Equal(t, map[string]any{"type": "string"}, headers["additionalProperties"])
}

func TestInputSchema_FromRegistry(t *testing.T) {
	reg := reflection.NewRegistry()
	reg.Namespace("acme").Func("Put",
		func(ctx context.Context, bucket string, body []byte, limit int, ratio float64, tags []string, extra reflection.Kwargs) error {
			return nil
		},
		reflection.Params("bucket", "body", "limit", "ratio", "tags", "extra"),
		reflection.Defaults(map[string]any{"limit": 10}),
	)

	members, err := reg.Members(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, members, 1)

	schema := InputSchema(members[0].Signature.Params, testRules())
	props := schema["properties"].(map[string]any)

	assert.Equal(t, "string", props["bucket"].(map[string]any)["type"])
	assert.Equal(t, "string", props["body"].(map[string]any)["type"])
	assert.Equal(t, map[string]any{"type": "integer", "default": 10}, props["limit"])
	assert.Equal(t, "number", props["ratio"].(map[string]any)["type"])
	assert.Equal(t, map[string]any{"type": "string"}, props["tags"].(map[string]any)["items"])
	assert.Equal(t, true, props["extra"].(map[string]any)["additionalProperties"])
	assert.Equal(t, []string{"bucket", "body", "ratio", "tags"}, schema["required"])
}

func TestInputSchema_NoParams(t *testing.T) {
	schema := InputSchema(nil, testRules())
	assert.Equal(t, true, schema["additionalProperties"])
	assert.NotContains(t, schema, "required")
}

func TestGenerate_Names(t *testing.T) {
	g := NewGenerator(testRules(), zerolog.Nop())

	cands := []discovery.Candidate{
		{Name: "ListBuckets", CanonicalPath: "acme.storage.BucketClient.ListBuckets", OwnerPath: "acme.storage.BucketClient", ModulePath: "acme.storage"},
		{Name: "Ping", CanonicalPath: "acme.Ping", ModulePath: "acme"},
		{Name: "list_buckets", CanonicalPath: "acme.legacy.BucketClient.list_buckets", OwnerPath: "acme.legacy.BucketClient", ModulePath: "acme.legacy"},
		{Name: "Get", CanonicalPath: "acme.users.Client.Get", OwnerPath: "acme.users.Client", ModulePath: "acme.users"},
		{Name: "Describe", CanonicalPath: "acme.Acme.Describe", OwnerPath: "acme.Acme", ModulePath: "acme"},
	}

	descs := g.Generate(cands)
	require.Len(t, descs, len(cands))

	assert.Equal(t, "acme_bucket_client_list_buckets", descs[0].Name)
	assert.Equal(t, "acme_ping", descs[1].Name)
	assert.Equal(t, "acme_bucket_client_list_buckets_acme_legacy_bucketclient", descs[2].Name)
	assert.Equal(t, "acme_users_get", descs[3].Name)
	assert.Equal(t, "acme_describe", descs[4].Name)

	assert.Equal(t, "acme.storage.BucketClient.ListBuckets", descs[0].Reference)
}

func TestGenerate_VersionedNames(t *testing.T) {
	g := NewGenerator(testRules(), zerolog.Nop())

	descs := g.Generate([]discovery.Candidate{
		{Name: "GetV1", CanonicalPath: "acme.CoreV1Api.GetV1", OwnerPath: "acme.CoreV1Api", ModulePath: "acme"},
		{Name: "GetV2", CanonicalPath: "acme.CoreV1Api.GetV2", OwnerPath: "acme.CoreV1Api", ModulePath: "acme"},
		{Name: "ListS3Buckets", CanonicalPath: "acme.ListS3Buckets", ModulePath: "acme"},
		{Name: "GetOAuthToken", CanonicalPath: "acme.GetOAuthToken", ModulePath: "acme"},
	})
	require.Len(t, descs, 4)

	assert.Equal(t, "acme_core_v1_api_get_v1", descs[0].Name)
	assert.Equal(t, "acme_core_v1_api_get_v2", descs[1].Name)
	assert.Equal(t, "acme_list_s3_buckets", descs[2].Name)
	assert.Equal(t, "acme_get_oauth_token", descs[3].Name)
}

func TestGenerate_NamesUnique(t *testing.T) {
	g := NewGenerator(testRules(), zerolog.Nop())

	var cands []discovery.Candidate
	for i := 0; i < 4; i++ {
		cands = append(cands, discovery.Candidate{
			Name:          "get",
			CanonicalPath: "acme.Client.get",
			OwnerPath:     "acme.Client",
			ModulePath:    "acme",
			Order:         i,
		})
	}

	descs := g.Generate(cands)
	seen := make(map[string]bool)
	for _, d := range descs {
		assert.False(t, seen[d.Name], "duplicate name %s", d.Name)
		seen[d.Name] = true
	}
	assert.Len(t, seen, 4)
}

func TestGenerate_Groups(t *testing.T) {
	g := NewGenerator(testRules(), zerolog.Nop())

	descs := g.Generate([]discovery.Candidate{
		{Name: "ListBuckets", CanonicalPath: "acme.storage.Buckets.ListBuckets", OwnerPath: "acme.storage.Buckets"},
		{Name: "DeleteBucket", CanonicalPath: "acme.storage.Buckets.DeleteBucket", OwnerPath: "acme.storage.Buckets"},
		{Name: "Ping", CanonicalPath: "acme.Ping", ModulePath: "acme"},
	})

	groups := g.Groups(descs)
	require.Len(t, groups, 2)
	assert.Equal(t, "acme_buckets_operations", groups[0].Name)
	assert.Equal(t, []string{"acme_buckets_list_buckets", "acme_buckets_delete_bucket"}, groups[0].Tools)
	assert.Equal(t, "buckets operations for acme", groups[0].Description)
	assert.Equal(t, "acme_operations", groups[1].Name)
}

func TestDescription(t *testing.T) {
	short := discovery.Candidate{Name: "ListBuckets", Doc: "Lists every bucket.\n\nMore detail here."}
	assert.Equal(t, "Lists every bucket.", Description(short))

	long := discovery.Candidate{Name: "ListBuckets"}
	for i := 0; i < 30; i++ {
		long.Doc += "very long text "
	}
	assert.Equal(t, "list buckets operation", Description(long))

	assert.Equal(t, "get object operation", Description(discovery.Candidate{Name: "get_object"}))
}

func TestDetectFlags(t *testing.T) {
	rs := testRules()
	tests := []struct {
		name string
		cand discovery.Candidate
		want Flags
	}{
		{"destructive", discovery.Candidate{Name: "DeleteBucket"}, Flags{Destructive: true, Confirm: true}},
		{"pager return", discovery.Candidate{Name: "ListObjects", Returns: "*storage.ObjectPager"}, Flags{Paginated: true}},
		{"poller return", discovery.Candidate{Name: "Restore", Returns: "*restore.Poller"}, Flags{LongRunning: true}},
		{"polling doc", discovery.Candidate{Name: "Wait", Doc: "Blocks while polling the backend."}, Flags{LongRunning: true}},
		{"caution doc", discovery.Candidate{Name: "Reset", Doc: "Use with caution."}, Flags{Dangerous: true}},
		{"async", discovery.Candidate{Name: "Watch", Async: true}, Flags{Async: true}},
		{"plain", discovery.Candidate{Name: "Ping"}, Flags{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFlags(tt.cand, rs))
		})
	}
}
