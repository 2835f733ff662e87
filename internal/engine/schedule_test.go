package engine

import (
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"rsi-options-engine/internal/markethours"
)

func TestNewScheduler_RegistersJobs(t *testing.T) {
	s := newEngine(t).NewSession(nil)

	sch, err := NewScheduler(markethours.DefaultWindow, s, func(string) {}, zerolog.Nop())
	assert.NoError(t, err)
	assert.Equal(t, 2, sch.Jobs())

	only, err := NewScheduler(markethours.DefaultWindow, s, nil, zerolog.Nop())
	assert.NoError(t, err)
	assert.Equal(t, 1, only.Jobs())

	sch.Start()
	sch.Stop()
}
