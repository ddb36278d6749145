package tools

import (
	"context"
	"fmt"
	"math/rand"
)

type rollDiceArgs struct {
	Sides int `json:"sides" jsonschema:"required,description=The number of sides on the dice (must be positive)"`
}

// DiceTool rolls an N-sided dice.
type DiceTool struct {
	// roll allows tests to pin the randomness. Defaults to rand.Intn.
	roll func(n int) int
}

// NewDiceTool creates the roll_dice tool.
func NewDiceTool() *DiceTool {
	return &DiceTool{roll: rand.Intn}
}

func (t *DiceTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "roll_dice",
		Description: "Rolls an N-sided dice and returns the result",
		Parameters:  MustGenerateSchema[rollDiceArgs](),
	}
}

func (t *DiceTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	sidesRaw, ok := args["sides"].(float64)
	if !ok {
		return "", fmt.Errorf("invalid 'sides' parameter")
	}
	sides := int(sidesRaw)
	if sides <= 0 {
		return "", NewValidationError("roll_dice", "'sides' must be positive, got %d", sides)
	}
	if sides > 1000000 {
		return "", NewValidationError("roll_dice", "'sides' must be <= 1000000, got %d", sides)
	}

	result := t.roll(sides) + 1
	return fmt.Sprintf("%d", result), nil
}

// Compile-time interface compliance check
var _ Tool = (*DiceTool)(nil)
