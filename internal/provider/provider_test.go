package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/provider"
)

func TestNewLMProvider(t *testing.T) {
	ctx := context.Background()

	lm, err := provider.NewLMProvider(ctx, "echo", provider.Credentials{}, provider.Options{})
	require.NoError(t, err)
	assert.NotNil(t, lm)

	lm, err = provider.NewLMProvider(ctx, "OpenAI", provider.Credentials{OpenAIKey: "sk-test"}, provider.Options{})
	require.NoError(t, err)
	assert.NotNil(t, lm)

	_, err = provider.NewLMProvider(ctx, "openai", provider.Credentials{}, provider.Options{})
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)

	_, err = provider.NewLMProvider(ctx, "bard", provider.Credentials{}, provider.Options{})
	assert.ErrorIs(t, err, provider.ErrInvalidLMProviderType)
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	e, err := provider.NewEmbedder(ctx, "openai", provider.Credentials{OpenAIKey: "sk-test"}, provider.Options{Dimensions: 1536})
	require.NoError(t, err)
	assert.Equal(t, uint(1536), e.GetDimensions())

	_, err = provider.NewEmbedder(ctx, "echo", provider.Credentials{}, provider.Options{})
	assert.ErrorIs(t, err, provider.ErrInvalidEmbedProviderType)
}

func TestNewReranker(t *testing.T) {
	ctx := context.Background()

	_, err := provider.NewReranker(ctx, "cohere", provider.Credentials{}, provider.Options{})
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)

	r, err := provider.NewReranker(ctx, "cohere", provider.Credentials{CohereKey: "co-test"}, provider.Options{Threshold: 0.5})
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestLMProvidersListed(t *testing.T) {
	assert.Equal(t, []string{"echo", "gemini", "ollama", "openai"}, provider.LMProviders())
}
