package api

import (
	"time"

	"github.com/igefined/market-feed/internal/domain"
	"github.com/igefined/market-feed/internal/market"
)

type tickerResponse struct {
	Symbol       string           `json:"symbol"`
	Snapshot     *domain.Snapshot `json:"snapshot,omitempty"`
	Loading      bool             `json:"loading"`
	Error        string           `json:"error,omitempty"`
	Connection   string           `json:"connection"`
	Reconnecting bool             `json:"reconnecting"`
	Degraded     *degradedNotice  `json:"degraded,omitempty"`
}

type degradedNotice struct {
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

func newTickerResponse(st market.State) tickerResponse {
	resp := tickerResponse{
		Symbol:       st.Symbol,
		Snapshot:     st.Snapshot,
		Loading:      st.Loading,
		Connection:   st.Connection.String(),
		Reconnecting: st.Reconnecting,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if st.Notice != nil {
		resp.Degraded = &degradedNotice{Reason: st.Notice.Reason, Since: st.Notice.Since}
	}
	return resp
}
