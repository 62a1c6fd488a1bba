package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/legalconnect/scheduler/internal/model"
)

func TestPeriodOf(t *testing.T) {
	assert.Equal(t, PeriodMorning, PeriodOf("07:00"))
	assert.Equal(t, PeriodMorning, PeriodOf("11:30"))
	assert.Equal(t, PeriodNoon, PeriodOf("12:00"))
	assert.Equal(t, PeriodNoon, PeriodOf("16:30"))
	assert.Equal(t, PeriodEvening, PeriodOf("17:00"))
	assert.Equal(t, PeriodEvening, PeriodOf("21:30"))
}

func TestFilterByPeriod(t *testing.T) {
	var slots []model.TimeSlot
	for _, at := range StandardGrid() {
		slots = append(slots, model.TimeSlot{Time: at})
	}

	morning := FilterByPeriod(slots, PeriodMorning)
	noon := FilterByPeriod(slots, PeriodNoon)
	evening := FilterByPeriod(slots, PeriodEvening)

	assert.Len(t, morning, 10) // 07:00 .. 11:30
	assert.Len(t, noon, 10)    // 12:00 .. 16:30
	assert.Len(t, evening, 10) // 17:00 .. 21:30
	assert.Len(t, morning[0].Time, 5)
}

func TestGroupByBand(t *testing.T) {
	var slots []model.TimeSlot
	for _, at := range StandardGrid() {
		slots = append(slots, model.TimeSlot{Time: at})
	}

	bands := GroupByBand(slots)

	assert.Len(t, bands["7-10"], 6) // 07:00 .. 09:30
	assert.Len(t, bands["10-13"], 6)
	assert.Len(t, bands["13-17"], 8)
	assert.Len(t, bands["17-19"], 4)
	assert.Len(t, bands["19-21"], 4)
	assert.Len(t, bands["21-22"], 2) // 21:00 21:30
	assert.Len(t, bands, 6)
}
