// Package plantuml renders a state table as a PlantUML state diagram.
package plantuml

import (
	"fmt"
	"io"
	"path"
	"reflect"
	"runtime"
	"strings"

	"github.com/stateforward/go-hsmbus"
	"github.com/stateforward/go-hsmbus/kinds"
)

func idFromQualifiedName(qualifiedName string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.TrimPrefix(qualifiedName, "/"), "-", "_"), "/", ".")
}

func actionName(action any) string {
	value := reflect.ValueOf(action)
	if !value.IsValid() || value.IsNil() {
		return ""
	}
	fn := runtime.FuncForPC(value.Pointer())
	if fn == nil {
		return ""
	}
	return path.Base(fn.Name())
}

func generateState[T any](builder *strings.Builder, depth int, machine *hsm.Machine[T], id hsm.StateID) {
	state, _ := machine.State(id)
	name := idFromQualifiedName(machine.QualifiedName(id))
	indent := strings.Repeat(" ", depth*2)
	var children []hsm.StateID
	for child := hsm.StateID(1); int(child) <= machine.Len(); child++ {
		if s, _ := machine.State(child); s.Parent == id {
			children = append(children, child)
		}
	}
	if len(children) > 0 {
		fmt.Fprintf(builder, "%sstate %s{\n", indent, name)
		for _, child := range children {
			generateState(builder, depth+1, machine, child)
		}
		if state.Initial != hsm.None {
			fmt.Fprintf(builder, "%s  [*] ----> %s\n", indent, idFromQualifiedName(machine.QualifiedName(state.Initial)))
		}
		fmt.Fprintf(builder, "%s}\n", indent)
	} else {
		fmt.Fprintf(builder, "%sstate %s\n", indent, name)
	}
	if entry := actionName(state.Entry); entry != "" {
		fmt.Fprintf(builder, "%sstate %s: entry / %s\n", indent, name, entry)
	}
	if run := actionName(state.Run); run != "" {
		fmt.Fprintf(builder, "%sstate %s: run / %s\n", indent, name, run)
	}
	if exit := actionName(state.Exit); exit != "" {
		fmt.Fprintf(builder, "%sstate %s: exit / %s\n", indent, name, exit)
	}
}

// Generate writes the diagram of machine. initial, when not None, is marked
// as the start state.
func Generate[T any](writer io.Writer, machine *hsm.Machine[T], initial hsm.StateID) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", machine.Name())
	for id := hsm.StateID(1); int(id) <= machine.Len(); id++ {
		if kinds.IsKind(machine.Kind(id), kinds.Root) {
			generateState(&builder, 1, machine, id)
		}
	}
	if initial != hsm.None {
		fmt.Fprintf(&builder, "[*] ----> %s\n", idFromQualifiedName(machine.QualifiedName(initial)))
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
