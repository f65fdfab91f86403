// internal/service/commerce/infrastructure/rule/cel_shipping_engine.go
package rule

import (
	"context"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/commerce/domain/port"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Rule 是一条运费规则。When 是一个返回布尔值的 CEL 表达式，
// 可引用变量 subtotal(double)、itemCount(int)、destination(string)。
type Rule struct {
	Name string
	When string
	Cost string
}

// CELShippingEngine 是 port.ShippingQuoter 接口的 CEL 实现。
// 它将第三方表达式引擎适配到我们自己的领域接口：
// 规则在构造时编译一次，询价时按顺序求值，第一条命中的规则定价。
type CELShippingEngine struct {
	rules       []compiledRule
	defaultCost decimal.Decimal
}

type compiledRule struct {
	name    string
	program cel.Program
	cost    decimal.Decimal
}

// NewCELShippingEngine 编译全部规则。任何一条编译失败都让服务启动失败，
// 带着坏规则上线只会在第一单结算时暴露。
func NewCELShippingEngine(rules []Rule, defaultCost decimal.Decimal) (*CELShippingEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("itemCount", cel.IntType),
		cel.Variable("destination", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ast, iss := env.Compile(r.When)
		if iss != nil && iss.Err() != nil {
			return nil, errors.Wrapf(iss.Err(), "compile shipping rule %q", r.Name)
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, errors.Errorf("shipping rule %q must evaluate to bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "build program for shipping rule %q", r.Name)
		}
		cost, err := decimal.NewFromString(r.Cost)
		if err != nil {
			return nil, errors.Wrapf(err, "parse cost of shipping rule %q", r.Name)
		}
		compiled = append(compiled, compiledRule{name: r.Name, program: prg, cost: cost})
	}

	return &CELShippingEngine{rules: compiled, defaultCost: defaultCost}, nil
}

// Quote 按顺序求值规则，第一条命中的规则决定运费，全部未命中用默认运费。
func (e *CELShippingEngine) Quote(ctx context.Context, req port.QuoteRequest) (decimal.Decimal, error) {
	vars := map[string]interface{}{
		"subtotal":    req.Subtotal.InexactFloat64(),
		"itemCount":   int64(req.ItemCount),
		"destination": req.Destination,
	}

	for _, r := range e.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "evaluate shipping rule %q", r.name)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return decimal.Zero, errors.Errorf("shipping rule %q returned %T, want bool", r.name, out.Value())
		}
		if matched {
			logger.Ctx(ctx).Debug().Str("rule", r.name).Str("cost", r.cost.String()).Msg("Shipping rule matched")
			return r.cost, nil
		}
	}
	return e.defaultCost, nil
}
