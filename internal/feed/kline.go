package feed

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"

	"github.com/wonny/lianban/internal/contracts"
)

// KlineStore holds daily bars indexed by date and code.
// Read-only after load, safe for concurrent use.
type KlineStore struct {
	byDate map[string]map[string]contracts.Bar // date → code → bar
	byCode map[string][]contracts.Bar          // code → bars, date asc
}

// LoadKlineFile reads kline_data.json ({code: [{date,open,close,low,high,volume}]})
func LoadKlineFile(path string) (*KlineStore, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kline file: %w", err)
	}
	return ParseKlines(body)
}

// ParseKlines parses the merged K-line JSON. Bars with bad prices or dates
// are dropped.
func ParseKlines(body []byte) (*KlineStore, error) {
	if !gjson.ValidBytes(body) {
		repaired, err := jsonrepair.JSONRepair(string(body))
		if err != nil {
			return nil, fmt.Errorf("repair kline json: %w", err)
		}
		body = []byte(repaired)
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("kline json: expected object keyed by code")
	}

	store := NewKlineStore()
	root.ForEach(func(key, bars gjson.Result) bool {
		code := contracts.NormalizeCode(key.String())
		bars.ForEach(func(_, v gjson.Result) bool {
			date, err := contracts.ParseDate(v.Get("date").String())
			if err != nil {
				return true
			}
			store.Add(code, contracts.Bar{
				Date:   date,
				Open:   v.Get("open").Float(),
				High:   v.Get("high").Float(),
				Low:    v.Get("low").Float(),
				Close:  v.Get("close").Float(),
				Volume: v.Get("volume").Float(),
			})
			return true
		})
		return true
	})
	store.sortBars()
	return store, nil
}

// NewKlineStore creates an empty store
func NewKlineStore() *KlineStore {
	return &KlineStore{
		byDate: make(map[string]map[string]contracts.Bar),
		byCode: make(map[string][]contracts.Bar),
	}
}

// Add inserts one bar (invalid bars are ignored)
func (k *KlineStore) Add(code string, bar contracts.Bar) {
	if !bar.Valid() {
		return
	}
	key := bar.Date.Format(contracts.DateLayout)
	day, ok := k.byDate[key]
	if !ok {
		day = make(map[string]contracts.Bar)
		k.byDate[key] = day
	}
	day[code] = bar
	k.byCode[code] = append(k.byCode[code], bar)
}

func (k *KlineStore) sortBars() {
	for _, bars := range k.byCode {
		sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	}
}

// BarsOn returns a copy of every bar on date
func (k *KlineStore) BarsOn(date time.Time) map[string]contracts.Bar {
	day := k.byDate[date.Format(contracts.DateLayout)]
	out := make(map[string]contracts.Bar, len(day))
	for code, bar := range day {
		out[code] = bar
	}
	return out
}

// Bars returns a code's bars in date order
func (k *KlineStore) Bars(code string) []contracts.Bar {
	return k.byCode[contracts.NormalizeCode(code)]
}

// Dates returns every date with at least one bar, ascending
func (k *KlineStore) Dates() []time.Time {
	out := make([]time.Time, 0, len(k.byDate))
	for key := range k.byDate {
		if d, err := contracts.ParseDate(key); err == nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Codes returns the number of codes in the store
func (k *KlineStore) Codes() int {
	return len(k.byCode)
}
