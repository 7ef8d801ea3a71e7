// Package feed loads cleaned daily batches (涨停股池 + 日K) for the core:
// from the on-disk history layout, from the zhitu API, or through a Redis cache.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"

	"github.com/wonny/lianban/internal/contracts"
)

// ErrNoData marks a non-trading day or a day without a pool file
var ErrNoData = errors.New("no data for date")

// PoolKind is one of the zhitu daily pools
type PoolKind string

const (
	PoolLimitUp   PoolKind = "limit_up"   // 涨停股池 (ztgc)
	PoolLimitDown PoolKind = "limit_down" // 跌停股池 (dtgc)
	PoolExplode   PoolKind = "explode"    // 炸板股池 (zbgc)
)

// endpoint returns the zhitu path segment for a pool
func (k PoolKind) endpoint() string {
	switch k {
	case PoolLimitDown:
		return "dtgc"
	case PoolExplode:
		return "zbgc"
	default:
		return "ztgc"
	}
}

// PoolRecord is one row of a zhitu pool
type PoolRecord struct {
	Code          string              // dm
	Name          string              // mc
	Price         float64             // p
	ChangePct     float64             // zf
	TurnoverRate  float64             // hs (%)
	CircCap       float64             // lt 流通市值
	TotalCap      float64             // zsz 总市值
	SealAmount    float64             // zj 封板资金
	Boards        int                 // lbc 连板数
	FirstSealTime contracts.TimeOfDay // fbt
	LastSealTime  contracts.TimeOfDay // lbt
	OpenCount     int                 // zbc 炸板次数
	Sector        string              // hy 所属行业

	Raw string // original JSON object, kept for re-saving
}

// ParsePool extracts records from a pool payload. Accepted shapes:
// a bare array, {"data": [...]} (history files) and
// {"code": 200, "data": {"list": [...]}}. Malformed JSON is repaired once.
func ParsePool(body []byte) ([]PoolRecord, error) {
	if !gjson.ValidBytes(body) {
		repaired, err := jsonrepair.JSONRepair(string(body))
		if err != nil {
			return nil, fmt.Errorf("repair pool json: %w", err)
		}
		body = []byte(repaired)
	}

	root := gjson.ParseBytes(body)
	var arr gjson.Result
	switch {
	case root.IsArray():
		arr = root
	case root.Get("data").IsArray():
		arr = root.Get("data")
	case root.Get("data.list").IsArray():
		arr = root.Get("data.list")
	case root.Get("code").Exists() && root.Get("code").Int() != 200:
		return nil, fmt.Errorf("pool api error %d: %s", root.Get("code").Int(), root.Get("msg").String())
	default:
		return nil, fmt.Errorf("pool json: no record array")
	}

	out := make([]PoolRecord, 0, len(arr.Array()))
	arr.ForEach(func(_, v gjson.Result) bool {
		if rec, ok := parseRecord(v); ok {
			out = append(out, rec)
		}
		return true
	})
	return out, nil
}

// parseRecord drops rows without a code
func parseRecord(v gjson.Result) (PoolRecord, bool) {
	if !v.IsObject() {
		return PoolRecord{}, false
	}
	code := contracts.NormalizeCode(v.Get("dm").String())
	if code == "" {
		return PoolRecord{}, false
	}

	first, _ := contracts.ParseTimeOfDay(v.Get("fbt").String())
	last, _ := contracts.ParseTimeOfDay(v.Get("lbt").String())

	return PoolRecord{
		Code:          code,
		Name:          strings.TrimSpace(v.Get("mc").String()),
		Price:         v.Get("p").Float(),
		ChangePct:     v.Get("zf").Float(),
		TurnoverRate:  v.Get("hs").Float(),
		CircCap:       v.Get("lt").Float(),
		TotalCap:      v.Get("zsz").Float(),
		SealAmount:    v.Get("zj").Float(),
		Boards:        int(v.Get("lbc").Int()),
		FirstSealTime: first,
		LastSealTime:  last,
		OpenCount:     int(v.Get("zbc").Int()),
		Sector:        strings.TrimSpace(v.Get("hy").String()),
		Raw:           v.Raw,
	}, true
}

// poolFile is the history file layout
type poolFile struct {
	Date  string            `json:"date"`
	Count int               `json:"count"`
	Data  []json.RawMessage `json:"data"`
}

type poolRow struct {
	Dm  string  `json:"dm"`
	Mc  string  `json:"mc"`
	P   float64 `json:"p"`
	Zf  float64 `json:"zf"`
	Hs  float64 `json:"hs"`
	Lt  float64 `json:"lt"`
	Zsz float64 `json:"zsz"`
	Zj  float64 `json:"zj"`
	Lbc int     `json:"lbc"`
	Fbt string  `json:"fbt"`
	Lbt string  `json:"lbt"`
	Zbc int     `json:"zbc"`
	Hy  string  `json:"hy"`
}

// EncodePool renders records in the history file layout
// {"date": ..., "count": ..., "data": [...]}. Raw rows are kept verbatim.
func EncodePool(date time.Time, records []PoolRecord) ([]byte, error) {
	file := poolFile{
		Date:  date.Format(contracts.DateLayout),
		Count: len(records),
		Data:  make([]json.RawMessage, 0, len(records)),
	}
	for _, r := range records {
		if r.Raw != "" {
			file.Data = append(file.Data, json.RawMessage(r.Raw))
			continue
		}
		row, err := json.Marshal(poolRow{
			Dm: strings.SplitN(r.Code, ".", 2)[0], Mc: r.Name,
			P: r.Price, Zf: r.ChangePct, Hs: r.TurnoverRate,
			Lt: r.CircCap, Zsz: r.TotalCap, Zj: r.SealAmount,
			Lbc: r.Boards, Fbt: r.FirstSealTime.String(), Lbt: r.LastSealTime.String(),
			Zbc: r.OpenCount, Hy: r.Sector,
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.Code, err)
		}
		file.Data = append(file.Data, row)
	}
	return json.Marshal(file)
}
