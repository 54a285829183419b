package action

// Stats 聚合了动作状态的统计信息，常用于仪表盘或健康检查。
type Stats struct {
	Total           int          `json:"total"`
	Idle            int          `json:"idle"`
	InFlight        int          `json:"inFlight"`
	Confirmed       int          `json:"confirmed"`
	Failed          int          `json:"failed"`
	ByKind          map[Kind]int `json:"byKind,omitempty"`
	OldestUpdatedAt int64        `json:"oldestUpdatedAt,omitempty"`
	NewestUpdatedAt int64        `json:"newestUpdatedAt,omitempty"`
}

func (s *Stats) add(kind Kind, status Status, count int) {
	s.Total += count
	switch {
	case status == StatusIdle:
		s.Idle += count
	case status == StatusConfirmed:
		s.Confirmed += count
	case status == StatusFailed:
		s.Failed += count
	case status.InFlight():
		s.InFlight += count
	}
	if kind != "" {
		if s.ByKind == nil {
			s.ByKind = make(map[Kind]int)
		}
		s.ByKind[kind] += count
	}
}

func (s *Stats) touch(updatedAt int64) {
	if updatedAt > 0 {
		if s.OldestUpdatedAt == 0 || updatedAt < s.OldestUpdatedAt {
			s.OldestUpdatedAt = updatedAt
		}
		if updatedAt > s.NewestUpdatedAt {
			s.NewestUpdatedAt = updatedAt
		}
	}
}
