package plantuml_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/go-hsmbus/button"
	"github.com/stateforward/go-hsmbus/pkg/plantuml"
)

func TestGenerate(t *testing.T) {
	machine, err := button.Machine()
	require.NoError(t, err)
	var builder strings.Builder
	require.NoError(t, plantuml.Generate(&builder, machine, button.StateInit))

	expected := `@startuml button
  state init{
    state init.idle
    state init.idle: entry / button.idleEntry
    state init.idle: run / button.idleRun
    state init.pressed{
      state init.pressed.long_press_pending
      state init.pressed.long_press_pending: entry / button.longPressPendingEntry
      state init.pressed.long_press_pending: run / button.longPressPendingRun
      [*] ----> init.pressed.long_press_pending
    }
    state init.pressed: entry / button.pressedEntry
    state init.pressed: run / button.pressedRun
    [*] ----> init.idle
  }
  state init: entry / button.initEntry
  state init: run / button.initRun
[*] ----> init
@enduml
`
	assert.Equal(t, expected, builder.String())
}
