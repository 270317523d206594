package partition

import (
	"fmt"
	"strings"

	"github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/pkg/types"
)

// ValidationError describes one problem with a partition directory.
type ValidationError struct {
	Partition string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Partition == "" {
		return e.Message
	}
	return fmt.Sprintf("partition %q: %s", e.Partition, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Check collects every problem with the directory. An empty result means the
// directory is usable.
func Check(spec *Spec) ValidationErrors {
	var errs ValidationErrors
	add := func(part, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Partition: part, Message: fmt.Sprintf(format, args...)})
	}

	if spec.KeyType == nil {
		add("", "key type is not set")
		return errs
	}
	if spec.KeyExpr == nil {
		add("", "key expression is not set")
	}

	switch spec.Strategy {
	case types.StrategyHash:
		if spec.Hash.Count == 0 {
			add("", "hash partition count must be > 0")
		}
		if _, err := types.ParseHashFunc(string(spec.Hash.Func)); err != nil {
			add("", "%v", err)
		}
		if len(spec.Ranges) > 0 {
			add("", "hash table must not list range partitions")
		}
	case types.StrategyRange:
		names := make(map[string]bool, len(spec.Ranges))
		for i, e := range spec.Ranges {
			if e.Name == "" {
				add(fmt.Sprintf("#%d", i), "name is empty")
			} else if names[e.Name] {
				add(e.Name, "duplicate partition name")
			}
			names[e.Name] = true

			if e.Index != i {
				add(e.Name, "index %d does not match position %d", e.Index, i)
			}
			if e.Min.Inf > 0 || e.Max.Inf < 0 {
				add(e.Name, "bounds point the wrong way")
				continue
			}
			if e.Min.Inf < 0 && i != 0 {
				add(e.Name, "only the first partition may be unbounded below")
			}
			if e.Max.Inf > 0 && i != len(spec.Ranges)-1 {
				add(e.Name, "only the last partition may be unbounded above")
			}
			if compareBounds(spec.KeyType, e.Min, e.Max) >= 0 {
				add(e.Name, "min must be below max")
			}
			if i > 0 && compareBounds(spec.KeyType, spec.Ranges[i-1].Max, e.Min) > 0 {
				add(e.Name, "overlaps %q or is out of order", spec.Ranges[i-1].Name)
			}
		}
	default:
		add("", "unsupported strategy %q", spec.Strategy)
	}
	return errs
}

// Validate returns an INVALID_SPEC error describing every problem with the
// directory, or nil.
func Validate(spec *Spec) error {
	errs := Check(spec)
	if len(errs) == 0 {
		return nil
	}
	return errors.Wrap(errors.ErrCategoryValidation, errors.CodeInvalidSpec,
		fmt.Sprintf("table %q: invalid partitioning", spec.TableID), errs)
}
