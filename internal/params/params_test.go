package params

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jrzesz33/encsys/internal/models"
)

func TestPath(t *testing.T) {
	assert.Equal(t, "/skt/dev/BatchCopyS3-EC2", Path("skt", "dev", "BatchCopyS3-EC2"))

	ns := Namespace{App: "skt", Env: "prod"}
	assert.Equal(t, "/skt/prod/ELBDNSName", ns.Path(KeyELBDNSName))
	assert.Equal(t, "/skt/prod/", ns.Prefix())
	assert.Equal(t, "ELBDNSName", ns.Key("/skt/prod/ELBDNSName"))
	assert.NoError(t, ns.Validate())
	assert.Error(t, Namespace{App: "skt"}.Validate())
}

func TestBatchKey(t *testing.T) {
	assert.Equal(t, "BatchCopyS3-EC2", BatchKey("CopyS3", models.StrategyEC2))
	assert.Equal(t, "BatchCopyS3-FGS", BatchKey("CopyS3", models.StrategyFargateSpot))

	tests := []struct {
		key          string
		wantPrefix   string
		wantStrategy models.Strategy
		wantOK       bool
	}{
		{"BatchCopyS3-EC2", "CopyS3", models.StrategyEC2, true},
		{"BatchH265-Encode-FGS", "H265-Encode", models.StrategyFargateSpot, true},
		{"BatchCopyS3-GPU", "", "", false},
		{"ELBDNSName", "", "", false},
		{"Batch-EC2", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			prefix, strategy, ok := ParseBatchKey(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPrefix, prefix)
			assert.Equal(t, tt.wantStrategy, strategy)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy(" fgs ")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyFargateSpot, s)

	_, err = ParseStrategy("spot")
	assert.Error(t, err)
}

func TestResourceName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JQ-dev-CopyS3", "JQ-dev-CopyS3"},
		{"arn:aws:batch:ap-northeast-2:123456789012:job-queue/JQ-dev-CopyS3", "JQ-dev-CopyS3"},
		{"arn:aws:batch:ap-northeast-2:123456789012:job-definition/JD-dev-CopyS3:4", "JD-dev-CopyS3"},
		{"arn:aws:batch:ap-northeast-2:123456789012:job-definition/JD-dev-CopyS3:128", "JD-dev-CopyS3"},
		{"JD-dev-CopyS3:7", "JD-dev-CopyS3"},
	}

	for _, tt := range tests {
		if got := ResourceName(tt.in); got != tt.want {
			t.Errorf("ResourceName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBatchTarget_RoundTrip(t *testing.T) {
	target := BatchTarget{JobQueueName: "JQ-dev-CopyS3", JobDefinitionName: "JD-dev-CopyS3"}

	encoded, err := target.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobQueueName":"JQ-dev-CopyS3","jobDefinitionName":"JD-dev-CopyS3"}`, encoded)

	decoded, err := DecodeBatchTarget(`{"jobQueueName":"arn:aws:batch:us-east-1:1:job-queue/JQ-dev-CopyS3","jobDefinitionName":"arn:aws:batch:us-east-1:1:job-definition/JD-dev-CopyS3:2"}`)
	require.NoError(t, err)
	assert.Equal(t, target, decoded)

	_, err = DecodeBatchTarget(`{"jobQueueName":"JQ"}`)
	assert.Error(t, err)
	_, err = DecodeBatchTarget(`not json`)
	assert.Error(t, err)
}

func TestMemoryStore_PublishedBatchTarget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Namespace{App: "skt", Env: "dev"})

	value, err := BatchTarget{JobQueueName: "JQ-dev-CopyS3", JobDefinitionName: "JD-dev-CopyS3"}.Encode()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, BatchKey("CopyS3", models.StrategyEC2), value, "dev"))

	assert.Equal(t, []string{"/skt/dev/BatchCopyS3-EC2"}, store.Paths())

	target, err := GetBatchTarget(ctx, store, "CopyS3", models.StrategyEC2)
	require.NoError(t, err)
	assert.Equal(t, "JQ-dev-CopyS3", target.JobQueueName)
	assert.Equal(t, "JD-dev-CopyS3", target.JobDefinitionName)

	_, err = GetBatchTarget(ctx, store, "CopyS3", models.StrategyFargateSpot)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_ReadYourWrite(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		ns := Namespace{
			App: rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "app"),
			Env: rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "env"),
		}
		store := NewMemoryStore(ns)
		keys := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z0-9-]{1,12}`), 1, 5).Draw(t, "keys")

		latest := make(map[string]string)
		writes := rapid.IntRange(1, 20).Draw(t, "writes")
		for i := 0; i < writes; i++ {
			key := rapid.SampledFrom(keys).Draw(t, "key")
			value := rapid.String().Draw(t, "value")
			if err := store.Put(ctx, key, value, ""); err != nil {
				t.Fatalf("Put: %v", err)
			}
			latest[key] = value
		}

		for key, want := range latest {
			got, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get(%q): %v", key, err)
			}
			if got != want {
				t.Fatalf("Get(%q) = %q, want %q", key, got, want)
			}
		}
		for _, p := range store.Paths() {
			if ns.Path(ns.Key(p)) != p {
				t.Fatalf("stored path %q is not /%s/%s/{key}", p, ns.App, ns.Env)
			}
		}
	})
}

type countingStore struct {
	*MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) (string, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, key)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: NewMemoryStore(Namespace{App: "skt", Env: "dev"})}
	require.NoError(t, backing.MemoryStore.Put(ctx, "k", "v1", ""))

	store := NewCachedStore(backing, 0)

	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v1", got)
	}
	assert.Equal(t, 1, backing.gets)

	require.NoError(t, store.Put(ctx, "k", "v2", ""))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 1, backing.gets)

	store.Flush()
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
