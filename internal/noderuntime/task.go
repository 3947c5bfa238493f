package noderuntime

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
	"github.com/smilemakc/nodeflow/internal/resilience"
	"github.com/smilemakc/nodeflow/internal/utils"
)

// TaskNode is the leaf work node for both the Script and Task runtime
// kinds. The actual evaluation is delegated to deps.Evaluator — an
// expr-lang-backed Evaluator by default — which the spec treats as an
// external collaborator the core only knows through "evaluate source text
// against a binding context and return a value or raise".
//
// As a concrete Task backend beyond plain expression evaluation, a node
// configured with Executor: "openai" calls the OpenAI chat completion API
// instead, guarded by a circuit breaker so a failing endpoint doesn't get
// hammered by the node's own retry policy.
type TaskNode struct {
	id        string
	script    string
	outputKey string

	executor string
	model    string
	prompt   string
	apiKey   string

	breaker *resilience.CircuitBreaker
}

func (n *TaskNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID
	outputKey, _ := def.ConfigString("OutputKey")
	n.outputKey = utils.DefaultValue(outputKey, "result")

	if executor, ok := def.ConfigString("Executor"); ok && executor == "openai" {
		n.executor = executor
		prompt, err := requireString(def, "Prompt")
		if err != nil {
			return err
		}
		n.prompt = prompt
		model, _ := def.ConfigString("Model")
		n.model = utils.DefaultValue(model, "gpt-4o-mini")
		n.apiKey, _ = def.ConfigString("APIKey")
		n.breaker = resilience.New(resilience.DefaultConfig())
		return nil
	}

	script, err := requireString(def, "Script")
	if err != nil {
		return err
	}
	n.script = script
	return nil
}

func (n *TaskNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	select {
	case <-ctx.Done():
		return domain.NodeStatusCancelled, domainerrors.Cancelled(n.id, "execution cancelled")
	default:
	}

	if n.executor == "openai" {
		return n.executeOpenAI(ctx, execCtx, deps)
	}

	vars := map[string]any{
		"input":  execCtx.InputData,
		"local":  execCtx.LocalVariables,
		"global": wfCtx.Globals.Snapshot(),
	}
	result, err := deps.Evaluator.Eval(n.script, vars)
	if err != nil {
		return domain.NodeStatusFailed, err
	}
	execCtx.OutputData[n.outputKey] = result
	return domain.NodeStatusCompleted, nil
}

func (n *TaskNode) executeOpenAI(ctx context.Context, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	client := openai.NewClient(n.apiKey)
	start := time.Now()

	var usage openai.Usage
	result, err := n.breaker.Call(func() (any, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: n.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: n.prompt},
			},
		})
		if err != nil {
			return nil, domainerrors.Runtime(n.id, "openai completion failed", err)
		}
		if len(resp.Choices) == 0 {
			return nil, domainerrors.Runtime(n.id, "openai returned no choices", nil)
		}
		usage = resp.Usage
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return domain.NodeStatusFailed, err
	}

	if deps.AIUsage != nil {
		deps.AIUsage.RecordCompletion(n.model, usage.PromptTokens, usage.CompletionTokens, time.Since(start))
	}

	execCtx.OutputData[n.outputKey] = result
	execCtx.OutputData["model"] = n.model
	return domain.NodeStatusCompleted, nil
}
