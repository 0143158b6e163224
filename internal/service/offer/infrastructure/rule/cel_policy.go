// internal/service/offer/infrastructure/rule/cel_policy.go
package rule

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"flashpromo/internal/service/offer/domain"
)

// Policy 是一条商户规则：Expr 对草稿求值为 false 时，在 Field 上报告 Reason。
// 草稿以 offer 变量暴露给表达式，只包含实际出现的字段，可选字段请先用 has() 判断。
type Policy struct {
	Name   string
	Field  string
	Expr   string
	Reason string
}

type compiledPolicy struct {
	Policy
	program cel.Program
}

// CELPolicyEngine 是 domain.PolicyEngine 接口的一个具体实现。
// 所有规则在启动时编译，语法错误会让服务启动失败。
type CELPolicyEngine struct {
	policies []compiledPolicy
}

// NewCELPolicyEngine 编译全部规则
func NewCELPolicyEngine(policies []Policy) (*CELPolicyEngine, error) {
	env, err := cel.NewEnv(cel.Variable("offer", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	compiled := make([]compiledPolicy, 0, len(policies))
	for _, p := range policies {
		ast, issues := env.Compile(p.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy %q: compile: %w", p.Name, issues.Err())
		}
		if out := ast.OutputType().String(); out != "bool" && out != "dyn" {
			return nil, fmt.Errorf("policy %q must evaluate to a bool, got %s", p.Name, out)
		}
		prg, err := env.Program(ast, cel.CostLimit(10000))
		if err != nil {
			return nil, fmt.Errorf("policy %q: program: %w", p.Name, err)
		}
		if p.Reason == "" {
			p.Reason = "violates policy " + p.Name
		}
		compiled = append(compiled, compiledPolicy{Policy: p, program: prg})
	}
	return &CELPolicyEngine{policies: compiled}, nil
}

// Evaluate 实现了 domain.PolicyEngine 接口。
func (e *CELPolicyEngine) Evaluate(ctx context.Context, draft *domain.Draft) ([]domain.FieldError, error) {
	// 1. 将领域对象展开为规则引擎使用的键值对
	input := map[string]any{"offer": draft.Facts()}

	var violations []domain.FieldError
	for _, p := range e.policies {
		// 2. 执行评估
		out, _, err := p.program.ContextEval(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.Name, err)
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("policy %q returned %T, want bool", p.Name, out.Value())
		}
		// 3. 返回结果
		if !allowed {
			violations = append(violations, domain.FieldError{
				PermutationID: draft.PermutationID,
				Field:         p.Field,
				Reason:        p.Reason,
			})
		}
	}
	return violations, nil
}
