package addon

import (
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// InterfaceName identifies one of the declared addon interfaces.
type InterfaceName string

// Declared interfaces
const (
	InterfaceStorage   InterfaceName = "storage"
	InterfaceCitation  InterfaceName = "citation"
	InterfaceComputing InterfaceName = "computing"
	InterfaceLink      InterfaceName = "link"
)

// Interface is the static operation table for one addon service type.
// The tables are built once at package init and never mutated.
type Interface struct {
	Name       InterfaceName
	Operations []OperationDeclaration
}

// Operation looks up a declared operation by name.
func (ai *Interface) Operation(name string) (*OperationDeclaration, error) {
	for i := range ai.Operations {
		if ai.Operations[i].Name == name {
			return &ai.Operations[i], nil
		}
	}
	return nil, gverrors.Newf(gverrors.KindNotFound,
		"interface %s declares no operation %q", ai.Name, name)
}

// OperationsForCapabilities returns the declared operations whose capability
// tag is within the given set.
func (ai *Interface) OperationsForCapabilities(caps Capabilities) []OperationDeclaration {
	var ops []OperationDeclaration
	for _, op := range ai.Operations {
		if caps.Contains(op.Capability) {
			ops = append(ops, op)
		}
	}
	return ops
}

// ImplementedOperations returns the subset of declared operations the given
// implementation instance actually provides.
func (ai *Interface) ImplementedOperations(imp any) []OperationDeclaration {
	var ops []OperationDeclaration
	for _, op := range ai.Operations {
		if op.ImplementedBy(imp) {
			ops = append(ops, op)
		}
	}
	return ops
}

// AllInterfaces lists the declared interfaces in a stable order.
func AllInterfaces() []*Interface {
	return []*Interface{
		StorageInterface,
		CitationInterface,
		ComputingInterface,
		LinkInterface,
	}
}
