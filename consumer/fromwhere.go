package consumer

import "strconv"

// FromWhere where consumption starts when the group has no committed
// offset yet
type FromWhere int8

func (f FromWhere) String() string {
	if f < 0 || int(f) >= len(fromWhereDescs) {
		panic("BUG:unknown from where:" + strconv.Itoa(int(f)))
	}
	return fromWhereDescs[f]
}

var fromWhereDescs = []string{
	"CONSUME_FROM_LAST_OFFSET",
	"CONSUME_FROM_BEGINNING",
	"CONSUME_FROM_END",
	"CONSUME_FROM_TIMESTAMP",
}

const (
	// ConsumeFromLastOffset resume from the committed offset
	ConsumeFromLastOffset FromWhere = iota
	// ConsumeFromBeginning play back from the earliest offset
	ConsumeFromBeginning
	// ConsumeFromEnd discard the backlog, start from the latest offset
	ConsumeFromEnd
	// ConsumeFromTimestamp start from the offset written around the
	// configured time point
	ConsumeFromTimestamp
)
