package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservationMode_OutputVarMapsActiveAndPassive(t *testing.T) {
	assert.Equal(t, "bs", ModeActive.OutputVar())
	assert.Equal(t, "tb", ModePassive.OutputVar())
}

func TestBillingCounter_CostFloorsFractionalTotal(t *testing.T) {
	c := &BillingCounter{LLMCalls: 3, RemoteJobs: 1}
	assert.Equal(t, 2, c.Cost(0.5, 1.4)) // 1.5 + 1.4 = 2.9, floored
}

func TestBillingCounter_CostIsZeroWhenNoEvents(t *testing.T) {
	c := &BillingCounter{}
	assert.Equal(t, 0, c.Cost(1, 1))
}
