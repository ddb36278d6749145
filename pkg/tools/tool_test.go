package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiceToolExecute(t *testing.T) {
	tool := NewDiceTool()
	tool.roll = func(n int) int { return n - 1 } // always roll the max
	ctx := context.Background()

	result, err := tool.Execute(ctx, map[string]interface{}{"sides": float64(6)})
	require.NoError(t, err)
	assert.Equal(t, "6", result)

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{"zero sides", map[string]interface{}{"sides": float64(0)}, "'sides' must be positive, got 0"},
		{"negative sides", map[string]interface{}{"sides": float64(-3)}, "'sides' must be positive, got -3"},
		{"too many sides", map[string]interface{}{"sides": float64(2000000)}, "'sides' must be <= 1000000, got 2000000"},
		{"missing sides", map[string]interface{}{}, "invalid 'sides' parameter"},
		{"wrong type", map[string]interface{}{"sides": "six"}, "invalid 'sides' parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(ctx, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestDiceToolValidationErrorType(t *testing.T) {
	tool := NewDiceTool()
	_, err := tool.Execute(context.Background(), map[string]interface{}{"sides": float64(0)})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "zero sides should be a validation error")
	assert.Equal(t, "roll_dice", verr.Tool)

	_, err = tool.Execute(context.Background(), map[string]interface{}{})
	assert.False(t, errors.As(err, &verr), "missing parameter is a protocol error, not validation")
}

func TestDiceToolRange(t *testing.T) {
	tool := NewDiceTool()
	for i := 0; i < 100; i++ {
		result, err := tool.Execute(context.Background(), map[string]interface{}{"sides": float64(6)})
		require.NoError(t, err)
		assert.Contains(t, []string{"1", "2", "3", "4", "5", "6"}, result)
	}
}

func TestPrimeToolExecute(t *testing.T) {
	tool := NewPrimeTool()
	ctx := context.Background()

	nums := func(vals ...float64) map[string]interface{} {
		raw := make([]interface{}, len(vals))
		for i, v := range vals {
			raw[i] = v
		}
		return map[string]interface{}{"numbers": raw}
	}

	result, err := tool.Execute(ctx, nums(17))
	require.NoError(t, err)
	assert.Equal(t, "17 are prime numbers.", result)

	result, err = tool.Execute(ctx, nums(2, 3, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, "2, 3, 5 are prime numbers.", result)

	result, err = tool.Execute(ctx, nums(4, 6, 8))
	require.NoError(t, err)
	assert.Equal(t, "None of the numbers are prime.", result)

	result, err = tool.Execute(ctx, nums())
	require.NoError(t, err)
	assert.Equal(t, "No numbers provided to check.", result)

	_, err = tool.Execute(ctx, nums(3, -1))
	require.Error(t, err)
	assert.Equal(t, "All numbers must be non-negative, got -1", err.Error())

	big := make([]interface{}, 1001)
	for i := range big {
		big[i] = float64(i)
	}
	_, err = tool.Execute(ctx, map[string]interface{}{"numbers": big})
	require.Error(t, err)
	assert.Equal(t, "'numbers' list too large (max 1000), got 1001", err.Error())
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("roll_dice", NewDiceTool()))
	require.NoError(t, reg.Register("check_prime", NewPrimeTool()))

	_, err := reg.Execute(context.Background(), "teleport", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, "unknown tool: teleport", err.Error())

	result, err := reg.Execute(context.Background(), "check_prime", map[string]interface{}{
		"numbers": []interface{}{float64(13)},
	})
	require.NoError(t, err)
	assert.Equal(t, "13 are prime numbers.", result)
}

func TestToolSchemas(t *testing.T) {
	dice := NewDiceTool().GetInfo()
	assert.Equal(t, "roll_dice", dice.Name)
	assert.Equal(t, "object", dice.Parameters["type"])
	props, ok := dice.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "sides")

	prime := NewPrimeTool().GetInfo()
	assert.Equal(t, "check_prime", prime.Name)
	props, ok = prime.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "numbers")
}
