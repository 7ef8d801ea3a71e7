package contracts

import (
	"context"
	"time"
)

// Scorer computes a ScoreBreakdown for one snapshot
// ⭐ SSOT: 점수 계산 인터페이스 (scoring.Calculator)
type Scorer interface {
	Score(s *StockSnapshot) ScoreBreakdown
}

// EligibilityFilter runs red-flag rules before scoring
// ⭐ SSOT: 红旗 필터 인터페이스 (redflag.Filter)
type EligibilityFilter interface {
	Evaluate(s *StockSnapshot) Verdict
}

// BatchSource loads one trading day of cleaned data
// ⭐ SSOT: 데이터 입력 인터페이스 (feed.Source)
type BatchSource interface {
	Load(ctx context.Context, date time.Time) (*DailyBatch, error)
}
