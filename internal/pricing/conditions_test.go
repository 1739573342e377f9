package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalConditions(t *testing.T) {
	facts := BuildFacts(ruleProductState(), d("50"), fixedNow)

	ok, err := EvalConditions([]byte(`{"<": [{"var": "product.stock_quantity"}, 5]}`), facts)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalConditions([]byte(`{">": [{"var": "trigger_cost"}, 100]}`), facts)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = EvalConditions([]byte(`{"and": [{">=": [{"var": "now.hour"}, 9]}, {"<": [{"var": "now.hour"}, 17]}]}`), facts)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalConditions([]byte(`{"==": [{"var": "product.sku"}, "ROT-42"]}`), facts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalConditions_EmptyAlwaysMatches(t *testing.T) {
	for _, raw := range []string{"", "null", "{}", "  "} {
		ok, err := EvalConditions([]byte(raw), Facts{})
		require.NoError(t, err)
		assert.True(t, ok, "conditions %q", raw)
	}
}

func TestValidConditions(t *testing.T) {
	assert.True(t, ValidConditions(nil))
	assert.True(t, ValidConditions([]byte(`{"<": [{"var": "product.stock_quantity"}, 5]}`)))
	assert.False(t, ValidConditions([]byte(`{"<": [`)))
}
