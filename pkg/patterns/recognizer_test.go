package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/sdkbridge/pkg/discovery"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ListBuckets", []string{"list", "buckets"}},
		{"get_user", []string{"get", "user"}},
		{"HTTPServer", []string{"http", "server"}},
		{"OAuthToken", []string{"oauth", "token"}},
		{"GetOAuthToken", []string{"get", "oauth", "token"}},
		{"IPAddress", []string{"ip", "address"}},
		{"list-v2-items", []string{"list", "v2", "items"}},
		{"CoreV1Api", []string{"core", "v1", "api"}},
		{"ListS3Buckets", []string{"list", "s3", "buckets"}},
		{"ListEC2Instances", []string{"list", "ec2", "instances"}},
		{"v1beta1", []string{"v1beta1"}},
		{"_private", []string{"private"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "get_bucket_policy", SnakeCase("GetBucketPolicy"))
	assert.Equal(t, "list_objects", SnakeCase("list__objects"))
	assert.Equal(t, "core_v1_api", SnakeCase("CoreV1Api"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want CRUD
		ok   bool
	}{
		{"CreateBucket", Create, true},
		{"GetBucketPolicy", Read, true},
		{"set_tags", Update, true},
		{"remove_item", Delete, true},
		{"get_or_create", Create, true},
		{"Ping", "", false},
		{"Getaway", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsAuth(t *testing.T) {
	assert.True(t, IsAuth("Login"))
	assert.True(t, IsAuth("refresh_token"))
	assert.True(t, IsAuth("OAuthCallback"))
	assert.False(t, IsAuth("Monkey"))
	assert.False(t, IsAuth("ListBuckets"))
}

func fixture() []discovery.Candidate {
	owner := "demo.storage.BucketClient"
	return []discovery.Candidate{
		{Name: "ListBuckets", OwnerPath: owner, CanonicalPath: owner + ".ListBuckets"},
		{Name: "CreateBucket", OwnerPath: owner, CanonicalPath: owner + ".CreateBucket"},
		{Name: "DeleteBucket", OwnerPath: owner, CanonicalPath: owner + ".DeleteBucket"},
		{Name: "GetBucketPolicy", OwnerPath: owner, CanonicalPath: owner + ".GetBucketPolicy"},
		{Name: "Login", CanonicalPath: "demo.auth.Login", ModulePath: "demo.auth"},
		{Name: "RefreshToken", CanonicalPath: "demo.auth.RefreshToken", ModulePath: "demo.auth"},
		{Name: "SearchUsers", CanonicalPath: "demo.users.SearchUsers", ModulePath: "demo.users"},
		{Name: "get", CanonicalPath: "demo.http.get", ModulePath: "demo.http"},
	}
}

func TestAnalyze_Resources(t *testing.T) {
	report := Analyze(fixture())

	require.Len(t, report.Resources, 1)
	cl, ok := report.Resource("bucketclient")
	require.True(t, ok)

	assert.Equal(t, 4, cl.Size)
	assert.Equal(t, "demo.storage.BucketClient", cl.Owner)
	require.Len(t, cl.Operations[Read], 2)
	assert.Equal(t, "ListBuckets", cl.Operations[Read][0].Name)
	assert.Equal(t, "GetBucketPolicy", cl.Operations[Read][1].Name)
	require.Len(t, cl.Operations[Create], 1)
	assert.Equal(t, "CreateBucket", cl.Operations[Create][0].Name)
	require.Len(t, cl.Operations[Delete], 1)
	assert.Empty(t, cl.Operations[Update])
	assert.Contains(t, cl.Related, "bucket")
	assert.LessOrEqual(t, len(cl.Related), 5)
}

func TestAnalyze_GroupsAndFlows(t *testing.T) {
	report := Analyze(fixture())

	require.Len(t, report.Groups, 3)
	assert.Equal(t, "http_requests", report.Groups[0].Name)
	assert.Equal(t, "demo.http.get", report.Groups[0].Operations[0].Path)
	assert.Equal(t, "authentication", report.Groups[1].Name)
	assert.Len(t, report.Groups[1].Operations, 2)
	assert.Equal(t, "search_query", report.Groups[2].Name)
	assert.Equal(t, "SearchUsers", report.Groups[2].Operations[0].Name)

	require.Len(t, report.AuthFlows[FlowSession], 1)
	assert.Equal(t, "Login", report.AuthFlows[FlowSession][0].Name)
	require.Len(t, report.AuthFlows[FlowToken], 1)
	assert.Equal(t, "RefreshToken", report.AuthFlows[FlowToken][0].Name)
	assert.NotContains(t, report.AuthFlows, FlowOAuth)
}

func TestAnalyze_Stats(t *testing.T) {
	st := Analyze(fixture()).Stats

	assert.Equal(t, 8, st.Total)
	assert.Equal(t, 1, st.OwnersAnalyzed)
	assert.Equal(t, 4, st.ByKind["read"])
	assert.Equal(t, 1, st.ByKind["create"])
	assert.Equal(t, 1, st.ByKind["delete"])
	assert.Equal(t, 2, st.ByKind["authentication"])
}

func TestAnalyze_Deterministic(t *testing.T) {
	first := Analyze(fixture())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Analyze(fixture()))
	}
}

func TestAnalyze_OwnerFallback(t *testing.T) {
	cands := []discovery.Candidate{
		{Name: "Run", OwnerPath: "x.Pipe", CanonicalPath: "x.Pipe.Run"},
		{Name: "Stop", OwnerPath: "x.Pipe", CanonicalPath: "x.Pipe.Stop"},
		{Name: "Run", OwnerPath: "x.Api", CanonicalPath: "x.Api.Run"},
		{Name: "Stop", OwnerPath: "x.Api", CanonicalPath: "x.Api.Stop"},
	}

	report := Analyze(cands)
	require.Len(t, report.Resources, 1)
	assert.Equal(t, "pipe", report.Resources[0].Name)
	assert.Equal(t, "x.Pipe", report.Resources[0].Owner)
}

func TestAnalyze_Empty(t *testing.T) {
	report := Analyze(nil)
	assert.Empty(t, report.Resources)
	assert.Empty(t, report.Groups)
	assert.Equal(t, 0, report.Stats.Total)
}
