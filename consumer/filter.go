package consumer

import "github.com/lonre/rocketmq-clients/rpc"

// ExprType the filter type of the subscription
type ExprType int8

const (
	// ExprTypeTag filters by the message tag
	ExprTypeTag ExprType = iota
	// ExprTypeSQL92 filters by a SQL92 predicate over the properties
	ExprTypeSQL92
)

const exprAll = "*"

// FilterExpression the subscription filter, immutable
type FilterExpression struct {
	Expression string
	Type       ExprType
}

// SubAll matches every message of the topic
func SubAll() FilterExpression {
	return FilterExpression{Expression: exprAll, Type: ExprTypeTag}
}

func (f FilterExpression) toRPC() rpc.FilterExpression {
	t := rpc.FilterTypeTag
	if f.Type == ExprTypeSQL92 {
		t = rpc.FilterTypeSQL
	}
	return rpc.FilterExpression{Type: t, Expression: f.Expression}
}
