package respond

// ReconcileRespond 单个系列的对账结果
type ReconcileRespond struct {
	SeriesId uint `json:"series_id"`
	Created  int  `json:"created"`
	Kept     int  `json:"kept"`
	Deleted  int  `json:"deleted"`
	Detached int  `json:"detached"`
}

// Changed 是否产生了变更
func (r ReconcileRespond) Changed() bool {
	return r.Created+r.Deleted+r.Detached > 0
}

// SweepRespond 一次清扫的汇总
// 使用位置:
//   - internal/worker/sweeper.go
//   - internal/handler/ops_handler.go
type SweepRespond struct {
	Name      string `json:"name"`
	RunId     string `json:"run_id,omitempty"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   bool   `json:"skipped,omitempty"`
}
