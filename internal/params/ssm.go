package params

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI is the subset of the SSM client used by SSMStore
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMStore implements Store using AWS Systems Manager Parameter Store
type SSMStore struct {
	client    SSMAPI
	namespace Namespace
	logger    *slog.Logger
}

// NewSSMStore creates a new parameter store for the namespace
func NewSSMStore(client SSMAPI, namespace Namespace, logger *slog.Logger) *SSMStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &SSMStore{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// Put writes a standard-tier String parameter, overwriting any previous value
func (s *SSMStore) Put(ctx context.Context, key, value, description string) error {
	name := s.namespace.Path(key)

	input := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeString,
		Tier:      types.ParameterTierStandard,
		Overwrite: aws.Bool(true),
	}
	if description != "" {
		input.Description = aws.String(description)
	}

	out, err := s.client.PutParameter(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put parameter %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "parameter written",
		slog.String("name", name),
		slog.Int64("version", out.Version),
	)

	return nil
}

// Get reads a parameter value
func (s *SSMStore) Get(ctx context.Context, key string) (string, error) {
	name := s.namespace.Path(key)

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s has no value", ErrNotFound, name)
	}

	return aws.ToString(out.Parameter.Value), nil
}

// List returns every parameter of the namespace keyed by its short key
func (s *SSMStore) List(ctx context.Context) (map[string]string, error) {
	result := make(map[string]string)

	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(s.namespace.Prefix()),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	for {
		out, err := s.client.GetParametersByPath(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list parameters under %s: %w", s.namespace.Prefix(), err)
		}

		for _, p := range out.Parameters {
			result[s.namespace.Key(aws.ToString(p.Name))] = aws.ToString(p.Value)
		}

		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	return result, nil
}
