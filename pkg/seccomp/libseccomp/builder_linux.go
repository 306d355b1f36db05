// Package libseccomp builds seccomp filters with libseccomp and exports them as
// raw BPF for the forked child to load.
package libseccomp

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/sirupsen/logrus"

	"github.com/curnrt/curn/pkg/pipe"
	"github.com/curnrt/curn/pkg/seccomp"
)

// Stage identifies the failing step of a build
type Stage int

// Build stages
const (
	StageContext Stage = iota + 1
	StageRule
	StageConditionalRule
	StageExport
)

func (s Stage) String() string {
	switch s {
	case StageContext:
		return "create context"
	case StageRule:
		return "add rule"
	case StageConditionalRule:
		return "add conditional rule"
	case StageExport:
		return "export"
	default:
		return "unknown"
	}
}

// BuildError is a failed build
type BuildError struct {
	Stage Stage
	Name  string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("seccomp: %v %s: %v", e.Stage, e.Name, e.Err)
	}
	return fmt.Sprintf("seccomp: %v: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Builder is used to build the filter
type Builder struct {
	Default     seccomp.Action
	Deny        []string
	Conditional []Rule
	// Action applies to Deny and Conditional
	Action seccomp.Action

	Logger logrus.FieldLogger
}

// Build builds the filter
func (b *Builder) Build() (seccomp.Filter, error) {
	log := b.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	filter, err := libseccomp.NewFilter(ToSeccompAction(b.Default))
	if err != nil {
		return nil, &BuildError{Stage: StageContext, Err: err}
	}
	defer filter.Release()

	action := ToSeccompAction(b.Action)
	for _, name := range b.Deny {
		if err := addFilterAction(filter, name, action); err != nil {
			return nil, &BuildError{Stage: StageRule, Name: name, Err: err}
		}
		log.Debugf("seccomp: %v %s", b.Action, name)
	}
	for _, r := range b.Conditional {
		if err := addConditionalAction(filter, r, action); err != nil {
			return nil, &BuildError{Stage: StageConditionalRule, Name: r.String(), Err: err}
		}
		log.Debugf("seccomp: %v %v", b.Action, r)
	}

	f, err := ExportBPF(filter)
	if err != nil {
		return nil, &BuildError{Stage: StageExport, Err: err}
	}
	log.Debugf("seccomp: filter of %d instructions", f.Len())
	return f, nil
}

// ExportBPF convert libseccomp filter to kernel readable BPF content
func ExportBPF(filter *libseccomp.ScmpFilter) (seccomp.Filter, error) {
	buf, err := pipe.NewBuffer(seccomp.MaxFilterSize)
	if err != nil {
		return nil, err
	}

	// export BPF to pipe
	err = filter.ExportBPF(buf.W)
	buf.W.Close()
	bin := buf.Wait()
	if err != nil {
		return nil, err
	}
	if buf.Overflowed() {
		return nil, fmt.Errorf("BPF program exceeds %d instructions", seccomp.MaxInstructions)
	}
	if len(bin) == 0 {
		return nil, fmt.Errorf("empty BPF program")
	}
	return seccomp.Filter(append([]byte(nil), bin...)), nil
}

func addFilterAction(filter *libseccomp.ScmpFilter, name string, action libseccomp.ScmpAction) error {
	syscallID, err := libseccomp.GetSyscallFromName(name)
	if err != nil {
		return err
	}
	return filter.AddRule(syscallID, action)
}

func addConditionalAction(filter *libseccomp.ScmpFilter, r Rule, action libseccomp.ScmpAction) error {
	syscallID, err := libseccomp.GetSyscallFromName(r.Name)
	if err != nil {
		return err
	}
	cond, err := libseccomp.MakeCondition(r.Arg, libseccomp.CompareMaskedEqual, r.Mask, r.Value)
	if err != nil {
		return err
	}
	return filter.AddRuleConditional(syscallID, action, []libseccomp.ScmpCondition{cond})
}
