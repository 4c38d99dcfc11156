package adapter

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"nexus-inventory/internal/service/inventory/domain"
)

// CELLinePolicy 用 CEL 表达式对订单行做准入校验，
// 表达式可以使用 orderId、productId、quantity 三个变量，例如:
//
//	quantity <= 10 && productId != "p-blocked"
type CELLinePolicy struct {
	expr    string
	program cel.Program
}

// NewCELLinePolicy 编译表达式。表达式的结果类型必须是 bool。
func NewCELLinePolicy(expr string) (*CELLinePolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("orderId", cel.StringType),
		cel.Variable("productId", cel.StringType),
		cel.Variable("quantity", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile line policy %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("line policy %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build line policy %q", expr)
	}
	return &CELLinePolicy{expr: expr, program: prg}, nil
}

func (p *CELLinePolicy) Allow(ctx context.Context, orderID string, line domain.OrderLine) (bool, error) {
	out, _, err := p.program.ContextEval(ctx, map[string]interface{}{
		"orderId":   orderID,
		"productId": line.ProductID,
		"quantity":  line.Quantity,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate line policy %q", p.expr)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("line policy %q returned %T", p.expr, out.Value())
	}
	return allowed, nil
}
