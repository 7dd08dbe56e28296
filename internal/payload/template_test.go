package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
)

func TestTemplate(t *testing.T) {
	vars := map[string]string{
		"BUCKET":   "weather-payloads",
		"WORKFLOW": "publish",
	}

	t.Run("substitutes both forms", func(t *testing.T) {
		out, err := Template(`{"bucket": "$BUCKET", "workflow": "${WORKFLOW}"}`, vars, false)
		require.NoError(t, err)
		assert.Equal(t, `{"bucket": "weather-payloads", "workflow": "publish"}`, out)
	})

	t.Run("dollar escape", func(t *testing.T) {
		out, err := Template("cost: $$5 in $BUCKET", vars, false)
		require.NoError(t, err)
		assert.Equal(t, "cost: $5 in weather-payloads", out)
	})

	t.Run("strict mode fails on unresolved", func(t *testing.T) {
		_, err := Template("$BUCKET and $NOPE and ${ALSO_NOPE}", vars, false)

		var missing *errors.MissingVariableError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"NOPE", "ALSO_NOPE"}, missing.Names)
	})

	t.Run("permissive mode leaves unresolved verbatim", func(t *testing.T) {
		out, err := Template("$BUCKET and $NOPE and ${ALSO_NOPE}", vars, true)
		require.NoError(t, err)
		assert.Equal(t, "weather-payloads and $NOPE and ${ALSO_NOPE}", out)
	})
}

func TestMergeVars(t *testing.T) {
	merged := MergeVars(
		map[string]string{"A": "1", "B": "2"},
		map[string]string{"B": "override", "C": "3"},
	)
	assert.Equal(t, map[string]string{"A": "1", "B": "override", "C": "3"}, merged)
}
