package fulfillment

import (
	"fmt"
	"math"
)

// PlanBatches partitions quantity units of a product weighing unitMass grams
// into shipment batch sizes, each strictly lighter than ceiling.
//
// The whole remainder goes in one batch when it fits; otherwise the batch
// takes as many units as keep its mass below the ceiling, which is what
// adding units one at a time until the next would reach the ceiling yields.
// A unit that alone meets the ceiling makes the quantity unshippable and no
// batch is returned.
func PlanBatches(unitMass, quantity, ceiling int) ([]int, error) {
	if quantity <= 0 {
		return nil, nil
	}
	if unitMass < 0 || ceiling <= 0 {
		return nil, fmt.Errorf("unit mass %dg, ceiling %dg: %w", unitMass, ceiling, ErrInvalidRequest)
	}
	var batches []int
	remaining := quantity
	for remaining > 0 {
		if fits(unitMass, remaining, ceiling) {
			batches = append(batches, remaining)
			break
		}
		n := (ceiling - 1) / unitMass
		if n == 0 {
			return nil, fmt.Errorf("unit mass %dg meets ceiling %dg: %w", unitMass, ceiling, ErrUnshippable)
		}
		batches = append(batches, n)
		remaining -= n
	}
	return batches, nil
}

// fits reports unitMass*quantity < ceiling without overflowing.
func fits(unitMass, quantity, ceiling int) bool {
	if unitMass == 0 {
		return true
	}
	return quantity <= (ceiling-1)/unitMass
}

// massOf returns unitMass*quantity for non-negative operands, saturating at
// math.MaxInt so an oversized line can never wrap below the ceiling.
func massOf(unitMass, quantity int) int {
	if unitMass <= 0 || quantity <= 0 {
		return 0
	}
	if quantity > math.MaxInt/unitMass {
		return math.MaxInt
	}
	return unitMass * quantity
}

// addSat adds non-negative a and b, saturating at math.MaxInt.
func addSat(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}
