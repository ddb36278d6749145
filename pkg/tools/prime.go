package tools

import (
	"context"
	"fmt"
	"strings"
)

type checkPrimeArgs struct {
	Numbers []int `json:"numbers" jsonschema:"required,description=The list of numbers to check for primality"`
}

// PrimeTool checks which numbers in a list are prime.
type PrimeTool struct{}

// NewPrimeTool creates the check_prime tool.
func NewPrimeTool() *PrimeTool {
	return &PrimeTool{}
}

func (t *PrimeTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "check_prime",
		Description: "Checks if the given numbers are prime and returns which ones are prime",
		Parameters:  MustGenerateSchema[checkPrimeArgs](),
	}
}

func (t *PrimeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	numbersRaw, ok := args["numbers"].([]interface{})
	if !ok {
		return "", fmt.Errorf("invalid 'numbers' parameter")
	}

	numbers := make([]int, len(numbersRaw))
	for i, n := range numbersRaw {
		numFloat, ok := n.(float64)
		if !ok {
			return "", fmt.Errorf("invalid 'numbers' parameter")
		}
		numbers[i] = int(numFloat)
	}

	if len(numbers) > 1000 {
		return "", NewValidationError("check_prime", "'numbers' list too large (max 1000), got %d", len(numbers))
	}
	for _, num := range numbers {
		if num < 0 {
			return "", NewValidationError("check_prime", "All numbers must be non-negative, got %d", num)
		}
	}

	return CheckPrime(numbers), nil
}

// CheckPrime reports which numbers in the list are prime, as a
// human-readable sentence.
func CheckPrime(numbers []int) string {
	if len(numbers) == 0 {
		return "No numbers provided to check."
	}

	var primes []string
	for _, n := range numbers {
		if isPrime(n) {
			primes = append(primes, fmt.Sprintf("%d", n))
		}
	}

	if len(primes) == 0 {
		return "None of the numbers are prime."
	}
	return strings.Join(primes, ", ") + " are prime numbers."
}

func isPrime(n int) bool {
	if n <= 1 {
		return false
	}
	if n == 2 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// Compile-time interface compliance check
var _ Tool = (*PrimeTool)(nil)
