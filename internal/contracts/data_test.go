package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:30:00", Clock(9, 30, 0), false},
		{"14:30", Clock(14, 30, 0), false},
		{"093512", Clock(9, 35, 12), false},
		{"93512", Clock(9, 35, 12), false},
		{"", 0, false},
		{"-", 0, false},
		{"25:00:00", 0, true},
		{"ab:cd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		T TimeOfDay `json:"t"`
	}{Clock(10, 5, 9)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"10:05:09"}`, string(data))

	var out struct {
		T TimeOfDay `json:"t"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, Clock(10, 5, 9), out.T)
	assert.True(t, TimeOfDay(0).IsZero())
}

func TestNormalizeCode(t *testing.T) {
	tests := map[string]string{
		"600001":    "600001.SH",
		"688001":    "688001.SH",
		"000001":    "000001.SZ",
		"300750":    "300750.SZ",
		"830799":    "830799.BJ",
		"430047":    "430047.BJ",
		"600001.sh": "600001.SH",
		"":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCode(in), in)
	}
}

func TestDailyBatchLadder(t *testing.T) {
	batch := &DailyBatch{
		Snapshots: []StockSnapshot{
			{Code: "B", ConsecutiveLimitUps: 2},
			{Code: "A", ConsecutiveLimitUps: 2},
			{Code: "C", ConsecutiveLimitUps: 5},
			{Code: "D", ConsecutiveLimitUps: 0},
		},
	}

	ladder := batch.Ladder()
	require.Len(t, ladder, 2)
	assert.Equal(t, LadderLevel{Height: 5, Count: 1, Codes: []string{"C"}}, ladder[0])
	assert.Equal(t, LadderLevel{Height: 2, Count: 2, Codes: []string{"A", "B"}}, ladder[1])
}

func TestDailyBatchBar(t *testing.T) {
	var nilBatch *DailyBatch
	_, ok := nilBatch.Bar("X")
	assert.False(t, ok)

	batch := &DailyBatch{Bars: map[string]Bar{"X": {Close: 10}}}
	bar, ok := batch.Bar("X")
	assert.True(t, ok)
	assert.Equal(t, 10.0, bar.Close)
}

func TestMarketSentimentMood(t *testing.T) {
	assert.Equal(t, "freezing", MarketSentiment{HeatIndex: 10}.Mood(30, 50, 80))
	assert.Equal(t, "neutral", MarketSentiment{HeatIndex: 40}.Mood(30, 50, 80))
	assert.Equal(t, "heating", MarketSentiment{HeatIndex: 60}.Mood(30, 50, 80))
	assert.Equal(t, "boiling", MarketSentiment{HeatIndex: 85}.Mood(30, 50, 80))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	got, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseDate("20240115")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	assert.True(t, IsTradingWeekday(want))
	assert.False(t, IsTradingWeekday(want.AddDate(0, 0, 5)))
}

func TestAddTradingDays(t *testing.T) {
	fri := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fri, AddTradingDays(fri, 0))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), AddTradingDays(fri, 1))
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), AddTradingDays(fri, 2))
}

func TestLimitUpPrice(t *testing.T) {
	tests := []struct {
		code      string
		prevClose float64
		want      float64
	}{
		{"600001", 10.00, 11.00},
		{"000001.SZ", 9.87, 10.86},
		{"300750.SZ", 10.00, 12.00},
		{"688001.SH", 25.00, 30.00},
		{"830799", 10.00, 13.00},
		{"600001.SH", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.InDelta(t, tt.want, LimitUpPrice(tt.code, tt.prevClose), 1e-9)
		})
	}
}

func TestIsSTName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ST海润", true},
		{"*ST三", true},
		{"S*ST前锋", true},
		{" st康美", true},
		{"贵州茅台", false},
		{"BEST科技", false},
		{"东方STAR", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSTName(tt.name))
		})
	}
}
