package contracts

// ExitReason records why a position (or part of it) was closed
// ⭐ SSOT: 청산 사유는 여기서만
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"   // 止损
	ExitTakeProfit ExitReason = "take_profit" // 止盈 (TP1 partial / TP2 final)
	ExitForced     ExitReason = "forced"      // 강제 청산 (backtest 종료 등)
	ExitUnfillable ExitReason = "unfillable"  // pending 체결 불가 (一字板, 停牌)
)

