package params

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSM struct {
	values   map[string]string
	puts     []*ssm.PutParameterInput
	pageSize int
	err      error
}

func newMockSSM() *mockSSM {
	return &mockSSM{values: make(map[string]string), pageSize: 2}
}

func (m *mockSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[aws.ToString(in.Name)]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (m *mockSSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.puts = append(m.puts, in)
	m.values[aws.ToString(in.Name)] = aws.ToString(in.Value)
	return &ssm.PutParameterOutput{Version: int64(len(m.puts))}, nil
}

func (m *mockSSM) GetParametersByPath(_ context.Context, in *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	if m.err != nil {
		return nil, m.err
	}

	var names []string
	for name := range m.values {
		if len(name) >= len(aws.ToString(in.Path)) && name[:len(aws.ToString(in.Path))] == aws.ToString(in.Path) {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	start := 0
	if in.NextToken != nil {
		for i, n := range names {
			if n == aws.ToString(in.NextToken) {
				start = i
			}
		}
	}

	out := &ssm.GetParametersByPathOutput{}
	end := start + m.pageSize
	if end < len(names) {
		out.NextToken = aws.String(names[end])
	} else {
		end = len(names)
	}
	for _, n := range names[start:end] {
		out.Parameters = append(out.Parameters, types.Parameter{Name: aws.String(n), Value: aws.String(m.values[n])})
	}
	return out, nil
}

func TestSSMStore_PutGet(t *testing.T) {
	ctx := context.Background()
	client := newMockSSM()
	store := NewSSMStore(client, Namespace{App: "skt", Env: "dev"}, nil)

	require.NoError(t, store.Put(ctx, "BatchCopyS3-EC2", `{"jobQueueName":"JQ-dev-CopyS3","jobDefinitionName":"JD-dev-CopyS3"}`, "dev"))

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "/skt/dev/BatchCopyS3-EC2", aws.ToString(put.Name))
	assert.Equal(t, types.ParameterTypeString, put.Type)
	assert.Equal(t, types.ParameterTierStandard, put.Tier)
	assert.True(t, aws.ToBool(put.Overwrite))
	assert.Equal(t, "dev", aws.ToString(put.Description))

	got, err := store.Get(ctx, "BatchCopyS3-EC2")
	require.NoError(t, err)
	assert.Contains(t, got, "JQ-dev-CopyS3")
}

func TestSSMStore_GetNotFound(t *testing.T) {
	store := NewSSMStore(newMockSSM(), Namespace{App: "skt", Env: "dev"}, nil)

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "error = %v", err)
}

func TestSSMStore_GetError(t *testing.T) {
	client := newMockSSM()
	client.err = errors.New("throttled")
	store := NewSSMStore(client, Namespace{App: "skt", Env: "dev"}, nil)

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSSMStore_ListPaginates(t *testing.T) {
	ctx := context.Background()
	client := newMockSSM()
	client.values["/skt/dev/a"] = "1"
	client.values["/skt/dev/b"] = "2"
	client.values["/skt/dev/c"] = "3"
	client.values["/skt/prod/a"] = "other"

	store := NewSSMStore(client, Namespace{App: "skt", Env: "dev"}, nil)
	got, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, got)
}
