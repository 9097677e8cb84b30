package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifier(t *testing.T) {
	testCases := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "communities", want: "communities"},
		{input: "  palmyra_app ", want: "palmyra_app"},
		{input: "", wantErr: true},
		{input: "Communities", wantErr: true},
		{input: "posts; DROP TABLE posts", wantErr: true},
		{input: "1posts", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := normalizeIdentifier("table name", tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSplitStatements(t *testing.T) {
	src := `-- header comment
CREATE TABLE a (id INT);

-- trailing comment only
`
	stmts := splitStatements(src)
	require.Len(t, stmts, 1)
	require.Contains(t, stmts[0], "CREATE TABLE a")
}

func TestValidateIdentifier(t *testing.T) {
	require.NoError(t, ValidateIdentifier("schema", " palmyra "))
	require.ErrorContains(t, ValidateIdentifier("app role", "Palmyra-App"), "invalid app role")
	require.ErrorContains(t, ValidateIdentifier("schema", ""), "schema is required")
}
