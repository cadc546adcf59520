package moex

type MarketTicker struct {
	Ticker    string
	ValToday  float64 // оборот в рублях за день
	LastPrice float64
	ChangePct float64 // к цене закрытия предыдущего дня
}
