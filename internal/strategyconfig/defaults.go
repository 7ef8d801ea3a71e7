package strategyconfig

// Default returns the stock ladder strategy (连板接力 v1)
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID:        "lianban_v1",
			Version:           "1.0.0",
			Timezone:          "Asia/Shanghai",
			DecisionTimeLocal: "15:40",
		},
		Scoring: Scoring{
			Height:    HeightFactor{Max: 40, SweetMin: 3, SweetMax: 4, HighRiskCredit: 0.5},
			Seal:      SealFactor{Max: 25, FullRatio: 0.10},
			Sector:    SectorFactor{Max: 20, FullAbove: 5},
			Turnover:  TurnoverFactor{Max: 15, BandLow: 10, BandHigh: 30, ZeroAt: 60},
			Timing:    TimingFactor{Max: 10, EarlyCutoff: "10:30"},
			MarketCap: MarketCapFactor{Max: 10, MinCap: 5e9, MaxCap: 2e10},
		},
		RedFlags: RedFlags{
			DataQuality:    true,
			OneWord:        true,
			AuctionCutoff:  "09:25",
			TailBoard:      true,
			TailCutoff:     "14:30",
			Maverick:       true,
			MaverickDays:   2,
			ST:             true,
			RecentlyListed: true,
			NewStockDays:   60,
		},
		Signal: Signal{
			BuyThreshold: 75,
			BuyFraction:  0.20,
		},
		Exit: Exit{
			StopLossPct:       0.07,
			HighBoardFrom:     5,
			TakeProfit1Pct:    0.15,
			TakeProfit2Pct:    0.25,
			TP1SellRatio:      0.5,
			BreakevenAfterTP1: true,
			TrailPct:          0.07,
		},
		Risk: Risk{
			MaxSingleFraction:    0.20,
			MaxTotalFraction:     1.0,
			MaxConsecutiveLosses: 3,
			RestDays:             1,
			CooldownRelease:      ReleaseOnProfit,
		},
		Execution: Execution{
			EntryMode:      EntryAtClose,
			LotSize:        100,
			InitialCapital: 1_000_000,
		},
		Sentiment: Sentiment{
			Freezing: 30,
			Heating:  50,
			Boiling:  80,
		},
	}
}
