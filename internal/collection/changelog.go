package collection

// changeLog is the insertion-ordered set of alarm ids changed since the last drain.
type changeLog struct {
	ids   []string
	index map[string]struct{}
}

func newChangeLog() *changeLog {
	return &changeLog{
		index: make(map[string]struct{}),
	}
}

func (l *changeLog) add(ids ...string) {
	for _, id := range ids {
		if _, ok := l.index[id]; ok {
			continue
		}

		l.index[id] = struct{}{}
		l.ids = append(l.ids, id)
	}
}

func (l *changeLog) len() int {
	return len(l.ids)
}

// drain returns the logged ids and empties the log.
func (l *changeLog) drain() []string {
	ids := l.ids
	l.ids = nil
	l.index = make(map[string]struct{})

	return ids
}
