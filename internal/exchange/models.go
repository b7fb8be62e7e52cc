package exchange

import (
	"strings"

	"perp_bot/internal/models"
)

// Wire format uses dash-separated ids ("ETH-USDC"), internal code uses
// slash-separated instruments ("ETH/USDC").

func instIDOf(inst models.Instrument) string {
	return strings.ReplaceAll(string(inst), "/", "-")
}

func instrumentOf(instID string) models.Instrument {
	return models.Instrument(strings.Replace(instID, "-", "/", 1))
}

type tickerResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

type balanceResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Details []balanceDetail `json:"details"`
	} `json:"data"`
}

type balanceDetail struct {
	Ccy       string `json:"ccy"`
	CashBal   string `json:"cashBal"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
}

type positionsResponse struct {
	Code string        `json:"code"`
	Msg  string        `json:"msg"`
	Data []positionRow `json:"data"`
}

type positionRow struct {
	InstID string `json:"instId"`
	Pos    string `json:"pos"`
	AvgPx  string `json:"avgPx"`
	UTime  string `json:"uTime"`
}

type candlesResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"` // [ts,o,h,l,c,vol]
}

type orderResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	} `json:"data"`
}
