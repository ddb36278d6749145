package reasoner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kadirpekel/aloha/pkg/tools"
)

// RuleReasoner answers dice and prime requests by pattern matching the
// input text. It is fully deterministic in which tool it picks, which
// makes it the right backend for environments without an LLM. It is
// never used as a fallback when an LLM backend errors.
type RuleReasoner struct {
	tools *tools.Registry
}

// NewRuleReasoner creates a rule-based reasoner over the registry.
func NewRuleReasoner(registry *tools.Registry) *RuleReasoner {
	return &RuleReasoner{tools: registry}
}

// Reason implements Reasoner.
func (r *RuleReasoner) Reason(ctx context.Context, input string) (string, error) {
	lower := strings.ToLower(input)

	if strings.Contains(lower, "roll") && strings.Contains(lower, "dice") {
		sides := extractDiceSides(input)
		result, err := r.tools.Execute(ctx, "roll_dice", map[string]interface{}{
			"sides": float64(sides),
		})
		if err != nil {
			return "", err
		}

		if strings.Contains(lower, "prime") {
			rolled, convErr := strconv.Atoi(result)
			if convErr != nil {
				return "", fmt.Errorf("%w: unexpected roll_dice output %q", ErrReasoningProtocol, result)
			}
			primeResult, err := r.tools.Execute(ctx, "check_prime", map[string]interface{}{
				"numbers": []interface{}{float64(rolled)},
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("I rolled a %d-sided dice and got: %s. %s", sides, result, primeResult), nil
		}

		return fmt.Sprintf("I rolled a %d-sided dice and got: %s", sides, result), nil
	}

	if strings.Contains(lower, "prime") {
		numbers := extractNumbers(input)
		if len(numbers) == 0 {
			return "Please provide numbers to check for primality.", nil
		}
		raw := make([]interface{}, len(numbers))
		for i, n := range numbers {
			raw[i] = float64(n)
		}
		return r.tools.Execute(ctx, "check_prime", map[string]interface{}{"numbers": raw})
	}

	return "I can roll dice and check if numbers are prime. What would you like me to do?", nil
}

var diceSidesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)[-\s]?sided`),
	regexp.MustCompile(`\bd(\d+)\b`),
	regexp.MustCompile(`(\d+)\s+side`),
}

// extractDiceSides reads the dice size out of the text. An explicit
// size is passed through even when invalid, so the tool's validation
// can reject it; only when nothing matches does the default of 6 apply.
func extractDiceSides(message string) int {
	for _, re := range diceSidesPatterns {
		matches := re.FindStringSubmatch(message)
		if len(matches) > 1 {
			if sides, err := strconv.Atoi(matches[1]); err == nil {
				return sides
			}
		}
	}
	return 6
}

var numberPattern = regexp.MustCompile(`-?\d+`)

func extractNumbers(message string) []int {
	matches := numberPattern.FindAllString(message, -1)
	numbers := make([]int, 0, len(matches))
	for _, m := range matches {
		if n, err := strconv.Atoi(m); err == nil {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

// Compile-time interface compliance check
var _ Reasoner = (*RuleReasoner)(nil)
