package asset

import "fmt"

// UnknownLiquidityBalanceError is fatal: the asset row references a
// liquidity balance the engine does not know.
type UnknownLiquidityBalanceError struct {
	Code  string
	Scale int32
}

func (e *UnknownLiquidityBalanceError) Error() string {
	return fmt.Sprintf("liquidity balance not found: %s (scale %d)", e.Code, e.Scale)
}

// UnknownSettlementBalanceError is fatal: the asset row references a
// settlement balance the engine does not know.
type UnknownSettlementBalanceError struct {
	Code  string
	Scale int32
}

func (e *UnknownSettlementBalanceError) Error() string {
	return fmt.Sprintf("settlement balance not found: %s (scale %d)", e.Code, e.Scale)
}
