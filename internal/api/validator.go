package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"dtree/internal/treefile"
	"dtree/proto/tree"
	"dtree/proto/verify"
)

// ErrValidation is wrapped by every request validation error.
var ErrValidation = errors.New("invalid request")

// ClassifyRequest is the body of POST /classify.
type ClassifyRequest struct {
	Input  *int   `json:"input"`
	Engine string `json:"engine"` // "sequential" (default) or "pipelined"
}

// BatchRequest is the body of POST /classify/batch.
type BatchRequest struct {
	Inputs []int `json:"inputs"`
}

// TreeRequest is the body of PUT /tree and PUT /trees/:name.
type TreeRequest struct {
	Nodes []treefile.Entry `json:"nodes"`
}

// Validator checks requests before they reach the core.
type Validator struct {
	maxBatch  int
	nameRegex *regexp.Regexp
}

// NewValidator returns a validator accepting batches of up to maxBatch inputs.
func NewValidator(maxBatch int) *Validator {
	return &Validator{
		maxBatch:  maxBatch,
		nameRegex: regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func validInput(v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, invalid("input %d outside 0..255", v)
	}
	return uint8(v), nil
}

// ValidateClassify returns the input and normalized engine name.
func (v *Validator) ValidateClassify(req ClassifyRequest) (uint8, string, error) {
	if req.Input == nil {
		return 0, "", invalid("input is required")
	}
	in, err := validInput(*req.Input)
	if err != nil {
		return 0, "", err
	}

	engine := strings.ToLower(strings.TrimSpace(req.Engine))
	switch engine {
	case "":
		engine = verify.Sequential
	case verify.Sequential, verify.Pipelined:
	default:
		return 0, "", invalid("engine %q: want %s or %s", req.Engine, verify.Sequential, verify.Pipelined)
	}
	return in, engine, nil
}

// ValidateBatch returns the batch inputs.
func (v *Validator) ValidateBatch(req BatchRequest) ([]uint8, error) {
	if len(req.Inputs) == 0 {
		return nil, invalid("inputs is required")
	}
	if len(req.Inputs) > v.maxBatch {
		return nil, invalid("%d inputs, at most %d", len(req.Inputs), v.maxBatch)
	}
	out := make([]uint8, len(req.Inputs))
	for i, x := range req.Inputs {
		in, err := validInput(x)
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		out[i] = in
	}
	return out, nil
}

// ValidateTree converts the request nodes into store order.
func (v *Validator) ValidateTree(req TreeRequest) ([]tree.Node, error) {
	nodes, err := treefile.FromEntries(req.Nodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nodes, nil
}

// ValidateName checks a library tree name.
func (v *Validator) ValidateName(name string) (string, error) {
	if !v.nameRegex.MatchString(name) {
		return "", invalid("tree name %q: 1-64 letters, digits, '.', '_' or '-'", name)
	}
	return name, nil
}
