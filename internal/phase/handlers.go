package phase

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/specflow/internal/dispatch"
	"github.com/felixgeelhaar/specflow/internal/errors"
	"github.com/felixgeelhaar/specflow/internal/genclient"
)

// Generator is the generation-client subset phase handlers need
type Generator interface {
	Generate(ctx context.Context, in genclient.Input) (*genclient.Result, error)
}

// OutputSpec names one artifact a GenerateHandler produces and the
// instruction that produces it
type OutputSpec struct {
	Filename    string
	Instruction string
}

// GenerateHandler runs machine-generated phases that produce a fixed set
// of artifacts, one generation call per artifact
type GenerateHandler struct {
	tag     Tag
	client  Generator
	outputs []OutputSpec
}

// NewGenerateHandler creates a handler for one machine-generated phase
func NewGenerateHandler(tag Tag, client Generator, outputs ...OutputSpec) *GenerateHandler {
	return &GenerateHandler{tag: tag, client: client, outputs: outputs}
}

func (h *GenerateHandler) CanHandle(tag Tag) bool { return tag == h.tag }

func (h *GenerateHandler) Execute(ctx context.Context, in *Input) (*Output, error) {
	out := &Output{}

	for _, spec := range h.outputs {
		result, err := h.client.Generate(ctx, genclient.Input{
			Prompt:      spec.Instruction,
			ContextDocs: in.Context,
			PhaseTag:    string(h.tag),
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodePhaseExecFailed,
				fmt.Sprintf("generating %s", spec.Filename), err)
		}
		out.Artifacts = append(out.Artifacts, GeneratedArtifact{
			Filename: spec.Filename,
			Content:  result.Content,
			Reason:   "phase generation",
		})
	}

	out.Message = fmt.Sprintf("generated %d artifact(s)", len(out.Artifacts))
	return out, nil
}

// ApprovalHandler runs human-approval phases. It only executes once every
// blocking gate is satisfied; it records the decision trail as an artifact.
type ApprovalHandler struct {
	tag Tag
}

// NewApprovalHandler creates a handler for one human-approval phase
func NewApprovalHandler(tag Tag) *ApprovalHandler {
	return &ApprovalHandler{tag: tag}
}

func (h *ApprovalHandler) CanHandle(tag Tag) bool { return tag == h.tag }

func (h *ApprovalHandler) Execute(ctx context.Context, in *Input) (*Output, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Approvals for phase %s\n\n", h.tag)
	for _, gate := range in.Gates {
		fmt.Fprintf(&b, "- %s: %s", gate.GateName, gate.Status)
		if gate.Approver != "" {
			fmt.Fprintf(&b, " (by %s)", gate.Approver)
		}
		b.WriteString("\n")
	}

	return &Output{
		Artifacts: []GeneratedArtifact{{
			Filename: "approvals.md",
			Content:  b.String(),
			Reason:   "approval record",
		}},
		Message: fmt.Sprintf("%d gate(s) satisfied", len(in.Gates)),
	}, nil
}

// componentsFile is the on-disk shape of the component list artifact
type componentsFile struct {
	Components       []dispatch.ComponentSpec `yaml:"components"`
	SharedComponents []string                 `yaml:"shared_components,omitempty"`
}

// ComponentsFilename is the artifact the solutioning phase consumes
const ComponentsFilename = "components.yaml"

// ComponentsHandler runs multi-artifact phases by delegating to the
// subagent dispatcher, one generation call per component
type ComponentsHandler struct {
	tag         Tag
	dispatcher  *dispatch.Dispatcher
	tokens      *dispatch.TokenSet
	concurrency int
}

// NewComponentsHandler creates a dispatcher-backed handler for one phase.
// concurrency <= 1 dispatches sequentially.
func NewComponentsHandler(tag Tag, d *dispatch.Dispatcher, tokens *dispatch.TokenSet, concurrency int) *ComponentsHandler {
	return &ComponentsHandler{
		tag:         tag,
		dispatcher:  d,
		tokens:      tokens,
		concurrency: concurrency,
	}
}

func (h *ComponentsHandler) CanHandle(tag Tag) bool { return tag == h.tag }

func (h *ComponentsHandler) Execute(ctx context.Context, in *Input) (*Output, error) {
	var file *componentsFile
	for _, doc := range in.Context {
		if doc.Name == ComponentsFilename {
			var parsed componentsFile
			if err := yaml.Unmarshal([]byte(doc.Content), &parsed); err != nil {
				return nil, errors.NewFileUnmarshalError(ComponentsFilename, "yaml", err)
			}
			file = &parsed
			break
		}
	}
	if file == nil {
		return nil, errors.New(errors.ErrCodePhaseExecFailed,
			fmt.Sprintf("no %s artifact found in completed phases", ComponentsFilename))
	}
	if len(file.Components) == 0 {
		return &Output{Message: "no components to generate"}, nil
	}

	h.dispatcher.Clear()
	dctx := &dispatch.Context{
		ProjectName:      in.Project.Name,
		PhaseTag:         string(h.tag),
		SharedComponents: file.SharedComponents,
		Tokens:           h.tokens,
	}

	results, err := h.dispatcher.DispatchParallel(ctx, file.Components, dctx, h.concurrency)
	if err != nil {
		return nil, err
	}

	out := &Output{}
	var failures []string
	for _, result := range results {
		if result.Success {
			out.Artifacts = append(out.Artifacts, GeneratedArtifact{
				Filename: result.ComponentName + ".tsx",
				Content:  result.Code,
				Reason:   "component generation",
			})
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s",
			result.ComponentName, strings.Join(result.Errors, "; ")))
	}

	if len(failures) > 0 {
		return nil, errors.New(errors.ErrCodePhaseExecFailed,
			fmt.Sprintf("%d of %d components failed: %s",
				len(failures), len(results), strings.Join(failures, " | ")))
	}

	out.Message = fmt.Sprintf("generated %d component(s)", len(out.Artifacts))
	return out, nil
}

// DefaultHandlers wires the standard workflow: machine-generated intake,
// stack-selection, specification, and validation phases, the
// dependency-approval gate phase, and the dispatcher-backed solutioning
// phase.
func DefaultHandlers(client Generator, d *dispatch.Dispatcher, tokens *dispatch.TokenSet, concurrency int) *Registry {
	r := NewRegistry()

	r.Register(NewGenerateHandler(TagIntake, client, OutputSpec{
		Filename:    "charter.md",
		Instruction: "Write a concise project charter from the project brief: goals, scope, constraints, and success criteria.",
	}))
	r.Register(NewGenerateHandler(TagStackSelection, client, OutputSpec{
		Filename:    "stack.md",
		Instruction: "Propose a technology stack for this project and justify each choice against the charter.",
	}))
	r.Register(NewGenerateHandler(TagSpecification, client,
		OutputSpec{
			Filename:    "specification.md",
			Instruction: "Write the full functional specification: features, data model, interfaces, and acceptance criteria.",
		},
		OutputSpec{
			Filename: ComponentsFilename,
			Instruction: "List the UI components this specification needs as YAML with a top-level " +
				"`components` list ({name, type, description, props, parent}) and a `shared_components` list. Return only YAML.",
		},
	))
	r.Register(NewApprovalHandler(TagDependencyApproval))
	r.Register(NewComponentsHandler(TagSolutioning, d, tokens, concurrency))
	r.Register(NewGenerateHandler(TagValidation, client, OutputSpec{
		Filename:    "validation-report.md",
		Instruction: "Review all prior artifacts for consistency and completeness, and write a validation report listing findings.",
	}))

	return r
}
