package domain

import "time"

// HistoryRecord is one immutable entry of the audit log. ID and Timestamp are
// assigned by the log on append.
type HistoryRecord struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestampUtc"`
	Question            string    `json:"question"`
	GeneratedSQL        string    `json:"generatedSql"`
	ExecutedSQL         string    `json:"executedSql"`
	APIExecutionMS      int64     `json:"apiExecutionMs"`
	DatabaseExecutionMS *int64    `json:"databaseExecutionMs"`
	ResultCount         *int      `json:"resultCount"`
	Note                string    `json:"note"`
}

// Clone returns a copy that shares no pointers with r.
func (r HistoryRecord) Clone() HistoryRecord {
	if r.DatabaseExecutionMS != nil {
		v := *r.DatabaseExecutionMS
		r.DatabaseExecutionMS = &v
	}
	if r.ResultCount != nil {
		v := *r.ResultCount
		r.ResultCount = &v
	}
	return r
}
