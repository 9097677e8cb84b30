package contracts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	spec, err := Load(context.Background())
	require.NoError(t, err)

	require.NotNil(t, spec.Paths.Find("/communities"))
	require.NotNil(t, spec.Paths.Find("/communities/{communityId}/posts/{postId}"))
	require.Contains(t, spec.Components.SecuritySchemes, "bearerAuth")
}
