package notifications

import (
	"fmt"
	"sort"
	"time"
)

const (
	GroupByDay   = "day"
	GroupByWeek  = "week"
	GroupByMonth = "month"
)

// StatsQuery scopes an aggregate over notifications.
type StatsQuery struct {
	UserID   string    `json:"user_id,omitempty"`
	DateFrom time.Time `json:"date_from,omitzero"`
	DateTo   time.Time `json:"date_to,omitzero"`
	GroupBy  string    `json:"group_by"`
}

// Normalize defaults GroupBy to day.
func (q StatsQuery) Normalize() StatsQuery {
	switch q.GroupBy {
	case GroupByDay, GroupByWeek, GroupByMonth:
	default:
		q.GroupBy = GroupByDay
	}
	return q
}

// StatsBucket counts notifications created within one period.
type StatsBucket struct {
	Period string `json:"period"`
	Count  int    `json:"count"`
}

// Stats is an aggregate view of a recipient's notifications.
type Stats struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	ByStatus   map[Status]int   `json:"byStatus"`
	ByType     map[Type]int     `json:"byType"`
	ByPriority map[Priority]int `json:"byPriority"`
	ByChannel  map[Channel]int  `json:"byChannel"`
	Series     []StatsBucket    `json:"series"`
}

// AggregateStats computes Stats over an in-memory set of notifications.
func AggregateStats(items []Notification, q StatsQuery) Stats {
	q = q.Normalize()
	st := Stats{
		ByStatus:   make(map[Status]int),
		ByType:     make(map[Type]int),
		ByPriority: make(map[Priority]int),
		ByChannel:  make(map[Channel]int),
	}
	series := make(map[string]int)

	for _, n := range items {
		if q.UserID != "" && n.RecipientID != q.UserID {
			continue
		}
		if !q.DateFrom.IsZero() && n.CreatedAt.Before(q.DateFrom) {
			continue
		}
		if !q.DateTo.IsZero() && n.CreatedAt.After(q.DateTo) {
			continue
		}

		st.Total++
		if n.IsUnread() {
			st.Unread++
		}
		st.ByStatus[n.Status]++
		st.ByType[n.Type]++
		st.ByPriority[n.Priority]++
		for _, ch := range n.DeliveryChannels {
			st.ByChannel[ch]++
		}
		series[PeriodKey(n.CreatedAt, q.GroupBy)]++
	}

	st.Series = make([]StatsBucket, 0, len(series))
	for p, c := range series {
		st.Series = append(st.Series, StatsBucket{Period: p, Count: c})
	}
	sort.Slice(st.Series, func(i, j int) bool { return st.Series[i].Period < st.Series[j].Period })
	return st
}

// PeriodKey formats t as the bucket label for groupBy, in UTC.
func PeriodKey(t time.Time, groupBy string) string {
	t = t.UTC()
	switch groupBy {
	case GroupByWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case GroupByMonth:
		return t.Format("2006-01")
	default:
		return t.Format(time.DateOnly)
	}
}
